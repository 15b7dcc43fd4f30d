package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestThatSetLevelChangesTheDefaultLoggerLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %s", err.Error())
	}

	if log.GetLevel() != log.DebugLevel {
		t.Errorf("Expected level debug, but was %s", log.GetLevel())
	}
}

func TestThatSetLevelRejectsUnknownLevels(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel should fail on an unknown level")
	}
}
