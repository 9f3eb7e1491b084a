package platform

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sig  Signals
		want Class
	}{
		{
			name: "iphone",
			sig:  Signals{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X)", HasTouch: true, MaxTouchPoints: 5, ViewportWidth: 390},
			want: ClassIOS,
		},
		{
			name: "ipad",
			sig:  Signals{UserAgent: "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X)", HasTouch: true, MaxTouchPoints: 5, ViewportWidth: 768},
			want: ClassIOS,
		},
		{
			name: "ipados masquerading as macos",
			sig:  Signals{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", HasTouch: true, MaxTouchPoints: 5, ViewportWidth: 1024},
			want: ClassIOS,
		},
		{
			name: "real mac",
			sig:  Signals{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", ViewportWidth: 1440},
			want: ClassDesktop,
		},
		{
			name: "android phone",
			sig:  Signals{UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8)", HasTouch: true, MaxTouchPoints: 10, ViewportWidth: 412},
			want: ClassAndroid,
		},
		{
			name: "unknown touch device with narrow viewport",
			sig:  Signals{UserAgent: "Mozilla/5.0 (X11; Linux aarch64)", HasTouch: true, MaxTouchPoints: 2, ViewportWidth: 720},
			want: ClassGenericMobile,
		},
		{
			name: "touch laptop with wide viewport",
			sig:  Signals{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", HasTouch: true, MaxTouchPoints: 10, ViewportWidth: 1920},
			want: ClassDesktop,
		},
		{
			name: "no signals at all",
			sig:  Signals{},
			want: ClassDesktop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.sig); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	sig := Signals{UserAgent: "Mozilla/5.0 (Linux; Android 13)", HasTouch: true, ViewportWidth: 360}
	first := Classify(sig)
	for range 10 {
		if got := Classify(sig); got != first {
			t.Fatalf("Classify() not stable: got %q then %q", first, got)
		}
	}
}

func TestBuildConstraints(t *testing.T) {
	tests := []struct {
		class        Class
		wantIdeal    int
		wantMin      int
		wantChannels int
	}{
		{ClassIOS, ReducedSampleRate, 0, 1},
		{ClassAndroid, FullSampleRate, 0, 1},
		{ClassGenericMobile, ReducedSampleRate, 0, 1},
		{ClassDesktop, FullSampleRate, ReducedSampleRate, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			cfg := BuildConstraints(tt.class)
			if cfg.SampleRate.Ideal != tt.wantIdeal {
				t.Errorf("ideal rate = %d, want %d", cfg.SampleRate.Ideal, tt.wantIdeal)
			}
			if cfg.SampleRate.Min != tt.wantMin {
				t.Errorf("min rate = %d, want %d", cfg.SampleRate.Min, tt.wantMin)
			}
			if cfg.ChannelCount != tt.wantChannels {
				t.Errorf("channels = %d, want %d", cfg.ChannelCount, tt.wantChannels)
			}
		})
	}
}

func TestDesktopRequestsRange(t *testing.T) {
	if !BuildConstraints(ClassDesktop).SampleRate.IsRange() {
		t.Error("desktop constraints should request a sample rate range")
	}
	if BuildConstraints(ClassIOS).SampleRate.IsRange() {
		t.Error("iOS constraints should request a fixed sample rate")
	}
}
