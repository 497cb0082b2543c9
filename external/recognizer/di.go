package recognizer

import (
	"github.com/foxseedlab/signscribe/internal/config"
	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (recognizer.FrameSource, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewMQTTFrameSource(MQTTOptions{
			BrokerURL:    c.MQTTBrokerURL,
			ClientID:     c.MQTTClientID,
			Username:     c.MQTTUsername,
			Password:     c.MQTTPassword,
			GestureTopic: c.MQTTGestureTopic,
			PoseTopic:    c.MQTTPoseTopic,
		}), nil
	})
}
