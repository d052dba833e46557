package logrus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/opscache"
)

func TestLogrusLoggerForwardsFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Info("session reset", opscache.Fields{"reason": "expired", "err": errors.New("x")})

	e := hook.LastEntry()
	if e == nil || e.Message != "session reset" || e.Level != logrus.InfoLevel {
		t.Fatalf("entry: %+v", e)
	}
	if e.Data["reason"] != "expired" {
		t.Fatalf("data: %v", e.Data)
	}
	if _, ok := e.Data[logrus.ErrorKey].(error); !ok {
		t.Fatalf("err should map to logrus error key: %v", e.Data)
	}
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info")
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hidden", nil)
	l.Warn("visible", opscache.Fields{"key": "k"})
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"visible"`) || !strings.Contains(out, `"component":"opscache"`) {
		t.Fatalf("output: %s", out)
	}
	if _, err := New(&buf, "loud"); err == nil {
		t.Fatalf("expected level error")
	}
}
