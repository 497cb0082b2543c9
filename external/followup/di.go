package followup

import (
	"github.com/foxseedlab/signscribe/internal/config"
	"github.com/foxseedlab/signscribe/internal/followup"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (followup.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewRestyClient(c.FollowupBaseURL, c.FollowupTimeout), nil
	})
	do.Provide(injector, func(i do.Injector) (followup.HistoryLoader, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCachedHistoryLoader(c.PatientHistoryPath, c.PatientHistoryTTL), nil
	})
}
