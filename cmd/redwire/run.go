package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/redwire/cmd/app"
	httpctrl "github.com/Agrid-Dev/redwire/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/redwire/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/redwire/internal/controllers/mqtt"
	"github.com/Agrid-Dev/redwire/internal/device"
	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/metrics"
	"github.com/Agrid-Dev/redwire/internal/sensor"
	"github.com/Agrid-Dev/redwire/internal/simulator"
)

func runBridge(ctx context.Context, cfg app.Config, log *zap.SugaredLogger) error {
	mq, err := mqttctrl.New(cfg.MQTTConfig(), log.Named("mqtt"))
	if err != nil {
		return err
	}
	if err := mq.Connect(ctx); err != nil {
		return err
	}

	col := metrics.New(cfg.DeviceID)
	opts := []heater.Option{
		heater.WithLogger(log.Named("heater")),
		heater.WithRejectHook(col.Rejected),
	}
	if cfg.Heater.UnsetTarget {
		opts = append(opts, heater.WithUnsetTarget())
	}
	h, err := heater.New(cfg.HeaterConfig(), mq, opts...)
	if err != nil {
		return err
	}
	h.OnChange(col.Observe)
	h.OnChange(mq.PublishSnapshot)

	feed, err := sensor.New(cfg.SensorConfig(), mq, log.Named("sensor"))
	if err != nil {
		return err
	}
	if err := feed.Start(); err != nil {
		return err
	}
	if err := h.Start(ctx, mq, feed); err != nil {
		return err
	}
	col.Observe(h.Get())

	runners := []device.Runner{mq}
	if c := cfg.Controllers.HTTP; c.Enabled {
		runners = append(runners, httpctrl.New(h, c.Addr, cfg.DeviceID,
			httpctrl.WithMetrics(col.Handler()),
			httpctrl.WithLogger(log.Named("http")),
		))
		log.Infow("http listening", "addr", c.Addr)
	}
	if c := cfg.Controllers.Modbus; c.Enabled {
		mb, err := modbusctrl.New(h, modbusctrl.Config{DeviceID: cfg.DeviceID, Addr: c.Addr, UnitID: c.UnitID})
		if err != nil {
			return err
		}
		runners = append(runners, mb)
		log.Infow("modbus listening", "addr", c.Addr, "unit_id", c.UnitID)
	}

	log.Infow("redwire started",
		"setpoint_topic", cfg.Heater.SetpointTopic,
		"power_topic", cfg.Heater.PowerTopic,
		"sensor_topic", cfg.Sensor.Topic,
	)
	return device.New(cfg.DeviceID, h).Run(ctx, runners...)
}

func runSimulator(ctx context.Context, cfg app.Config, log *zap.SugaredLogger) error {
	mcfg := cfg.MQTTConfig()
	mcfg.DeviceID += "-sim"
	mcfg.StateTopic = ""
	mq, err := mqttctrl.New(mcfg, log.Named("mqtt"))
	if err != nil {
		return err
	}
	if err := mq.Connect(ctx); err != nil {
		return err
	}

	sim, err := simulator.New(cfg.SimulatorConfig(), mq, log.Named("simulator"))
	if err != nil {
		return err
	}
	if err := sim.Start(); err != nil {
		return err
	}
	log.Infow("simulator started", "sensor_topic", cfg.Sensor.Topic, "interval", cfg.Simulator.Interval)
	return device.New(mcfg.DeviceID, nil).Run(ctx, mq, sim)
}
