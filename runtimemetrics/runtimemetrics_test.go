package runtimemetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wasmproc/core/execproc"
	"github.com/wasmproc/core/runtimemetrics"
)

func TestCollector_Register(t *testing.T) {
	c := runtimemetrics.New()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(reg); err == nil {
		t.Fatal("expected a duplicate-registration error on the second Register")
	}
}

func TestCollector_OnTaint_CountsByKind(t *testing.T) {
	c := runtimemetrics.New()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.OnTaint(execproc.TaintReason{Kind: execproc.TaintNonZeroExitCode, ExitCode: 7})
	c.OnTaint(execproc.TaintReason{Kind: execproc.TaintNonZeroExitCode, ExitCode: 9})
	c.OnTaint(execproc.TaintReason{Kind: execproc.TaintRuntimeError})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var counted int
	for _, mf := range mfs {
		if mf.GetName() != "wasmproc_runtime_taints_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() != "kind" {
					continue
				}
				switch lbl.GetValue() {
				case "NonZeroExitCode":
					if got := m.GetCounter().GetValue(); got != 2 {
						t.Fatalf("NonZeroExitCode count = %v, want 2", got)
					}
					counted++
				case "RuntimeError":
					if got := m.GetCounter().GetValue(); got != 1 {
						t.Fatalf("RuntimeError count = %v, want 1", got)
					}
					counted++
				}
			}
		}
	}
	if counted != 2 {
		t.Fatalf("observed %d labeled series, want 2 (NonZeroExitCode, RuntimeError)", counted)
	}
}

func TestCollector_OnThreadFinished_Buckets(t *testing.T) {
	c := runtimemetrics.New()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.OnThreadFinished(execproc.ThreadResult{ExitCode: 0})
	c.OnThreadFinished(execproc.ThreadResult{ExitCode: 7})
	c.OnThreadFinished(execproc.ThreadResult{Err: errBoom{}})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "wasmproc_runtime_thread_completions_total" {
			found = true
			if got := len(mf.GetMetric()); got != 3 {
				t.Fatalf("expected 3 exit buckets observed, got %d", got)
			}
		}
	}
	if !found {
		t.Fatal("thread_completions_total metric family not found after Gather")
	}
}

func TestCollector_SetLoaderHandlesOpen(t *testing.T) {
	c := runtimemetrics.New()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.SetLoaderHandlesOpen(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "wasmproc_runtime_loader_handles_open" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Fatalf("loader_handles_open = %v, want 3", got)
			}
		}
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
