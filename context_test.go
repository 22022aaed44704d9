package chromelens

import "testing"

func TestAddInitScriptAppendsInOrderWithNoAttachedSessions(t *testing.T) {
	c := &Context{}

	if err := c.AddInitScript("one"); err != nil {
		t.Fatalf("AddInitScript(one): %v", err)
	}
	if err := c.AddInitScript("two"); err != nil {
		t.Fatalf("AddInitScript(two): %v", err)
	}
	if err := c.AddInitScript("three"); err != nil {
		t.Fatalf("AddInitScript(three): %v", err)
	}

	want := []string{"one", "two", "three"}
	if len(c.initScripts) != len(want) {
		t.Fatalf("initScripts = %v, want %v", c.initScripts, want)
	}
	for i, s := range want {
		if c.initScripts[i] != s {
			t.Fatalf("initScripts[%d] = %q, want %q", i, c.initScripts[i], s)
		}
	}
}

func TestWithViewportAndWithDeviceSetContextFields(t *testing.T) {
	var c Context
	WithViewport(800, 600, EmulateMobile)(&c)
	if c.viewport == nil || c.viewport.width != 800 || c.viewport.height != 600 {
		t.Fatalf("unexpected viewport: %+v", c.viewport)
	}

	dev := stubDevice{ua: "stub-agent"}
	WithDevice(dev)(&c)
	if c.device != dev {
		t.Fatalf("WithDevice did not set c.device")
	}
}

type stubDevice struct{ ua string }

func (d stubDevice) UserAgent() string { return d.ua }
func (d stubDevice) Viewport() (width, height int64, opts []EmulateViewportOption) {
	return 1024, 768, nil
}
