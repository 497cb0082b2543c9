package visit

import (
	"github.com/foxseedlab/signscribe/internal/audio"
	"github.com/foxseedlab/signscribe/internal/config"
	"github.com/foxseedlab/signscribe/internal/discord"
	"github.com/foxseedlab/signscribe/internal/followup"
	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/repository"
	"github.com/foxseedlab/signscribe/internal/store"
	"github.com/foxseedlab/signscribe/internal/transcriber"
	"github.com/foxseedlab/signscribe/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewManager(cfg, Dependencies{
			Store:       store.New(),
			Repository:  do.MustInvoke[repository.Repository](i),
			Discord:     do.MustInvoke[discord.Client](i),
			Transcriber: do.MustInvoke[transcriber.Transcriber](i),
			Webhook:     do.MustInvoke[webhook.Sender](i),
			Followup:    do.MustInvoke[followup.Client](i),
			History:     do.MustInvoke[followup.HistoryLoader](i),
			Frames:      do.MustInvoke[recognizer.FrameSource](i),
			NewMixer:    do.MustInvoke[audio.MixerFactory](i),
		}), nil
	})
}
