package main

import (
	"context"
	"testing"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if err := run(context.Background(), nil); err == nil {
		t.Fatalf("expected error for missing command")
	}
}

func TestInitCommand(t *testing.T) {
	if err := run(context.Background(), []string{"init", "-store", "memory"}); err != nil {
		t.Fatalf("init: %v", err)
	}
}

func TestTuneCommandSmallRun(t *testing.T) {
	err := run(context.Background(), []string{
		"tune",
		"-store", "memory",
		"-seed", "42",
		"-particles", "4",
		"-iterations", "2",
		"-duration", "1.0",
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
}

func TestTuneCommandRejectsMismatchedBounds(t *testing.T) {
	err := run(context.Background(), []string{
		"tune",
		"-store", "memory",
		"-bounds-min", "1,1",
		"-bounds-max", "10,10,10",
	})
	if err == nil {
		t.Fatalf("expected error for mismatched bounds")
	}
}

func TestSimulateCommand(t *testing.T) {
	err := run(context.Background(), []string{
		"simulate",
		"-gains", "10,5,2,1,50,0.1",
		"-duration", "1.0",
		"-every", "50",
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if err := run(context.Background(), []string{"simulate"}); err == nil {
		t.Fatalf("expected error without gains")
	}
}

func TestShowCommandRequiresSelector(t *testing.T) {
	if err := run(context.Background(), []string{"show", "-store", "memory"}); err == nil {
		t.Fatalf("expected error without run selector")
	}
}

func TestVariantsCommand(t *testing.T) {
	if err := run(context.Background(), []string{"variants"}); err != nil {
		t.Fatalf("variants: %v", err)
	}
}
