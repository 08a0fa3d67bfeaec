// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import "testing"

func TestAll(t *testing.T) {
	saver := &dummySaver{
		done: make(chan bool),
	}
	RegisterSaver(saver)

	m := New("Set")
	m.StartSpan("validate").StartSpan("applyToTree").End()
	m.StartSpan("notifyWatchers").End().Done()

	// Not much to do here other than assert we have three spans.
	if len(m.spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(m.spans))
	}
	expected := "Set.validate"
	if m.spans[0].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[0].Name)
	}
	expected = "Set.applyToTree"
	if m.spans[1].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[1].Name)
	}
	if m.spans[1].ParentSpan != m.spans[0] {
		t.Errorf("Expected parent span to be %q, got %v", m.spans[0].Name, m.spans[1].ParentSpan)
	}
	expected = "Set.notifyWatchers"
	if m.spans[2].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[2].Name)
	}

	// Save one more metric.
	New("Prune").StartSpan("removeSubtree").End().Done()

	// Finish.
	saveQueue <- nil
	<-saver.done
	close(saver.done)

	if saver.count != 2 {
		t.Fatalf("Expected 2 metrics processed, got %d", saver.count)
	}
}

func TestFullChannel(t *testing.T) {
	for i := 0; i < SaveQueueLength+3; i++ {
		New("Prune").StartSpan("removeSubtree").End().Done()
	}
	// If we block, this test will never finish.
}

type dummySaver struct {
	count int
	done  chan bool
}

func (d *dummySaver) Register(queue chan *Metric) {
	go func() {
		for {
			select {
			case m := <-queue:
				if m == nil {
					d.done <- true
					return
				}
				d.count++
			}
		}
	}()
}
