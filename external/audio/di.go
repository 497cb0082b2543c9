package audio

import (
	"github.com/foxseedlab/signscribe/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audio.MixerFactory(func(speakerIDs ...string) audio.Mixer {
		return NewOpusMixer(speakerIDs...)
	}))
}
