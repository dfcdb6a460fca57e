package capture

import (
	"context"
	"testing"
	"time"
)

func TestOptionsDefaults(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/calendar", OutputPath: "out.png"}
	if err := o.withDefaults(); err != nil {
		t.Fatalf("withDefaults: %v", err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeout {
		t.Fatalf("defaults = %+v", o)
	}

	o = Options{URL: "u", OutputPath: "p", Width: 800, Height: 480, Timeout: time.Second}
	if err := o.withDefaults(); err != nil || o.Width != 800 || o.Height != 480 || o.Timeout != time.Second {
		t.Fatalf("explicit values overridden: %+v %v", o, err)
	}
}

func TestPageRequiresURLAndOutput(t *testing.T) {
	if err := Page(context.Background(), Options{OutputPath: "x.png"}); err == nil {
		t.Fatalf("missing URL accepted")
	}
	if err := Page(context.Background(), Options{URL: "http://x"}); err == nil {
		t.Fatalf("missing output accepted")
	}
}
