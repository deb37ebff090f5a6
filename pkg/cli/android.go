package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/devicelab-dev/droidpilot/pkg/agent"
	"github.com/devicelab-dev/droidpilot/pkg/config"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/device"
	"github.com/devicelab-dev/droidpilot/pkg/history"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/vision"
	"github.com/devicelab-dev/droidpilot/pkg/voice"
)

// connectDevice connects to the configured device, or the only one attached.
func connectDevice(ctx context.Context, serial string) (*device.AndroidDevice, error) {
	if serial != "" {
		printSetupStep(fmt.Sprintf("Connecting to device %s...", serial))
		logger.Info("Connecting to Android device: %s", serial)
	} else {
		printSetupStep("Connecting to device...")
		logger.Info("Auto-detecting Android device...")
	}
	dev, err := device.New(ctx, serial)
	if err != nil {
		logger.Error("Failed to connect to device: %v", err)
		return nil, fmt.Errorf("connect to device: %w", err)
	}

	info, err := dev.Info(ctx)
	if err != nil {
		logger.Error("Failed to get device info: %v", err)
		return nil, fmt.Errorf("get device info: %w", err)
	}
	logger.Info("Device info: %s %s, SDK %s, Serial %s, Emulator: %v",
		info.Brand, info.Model, info.SDK, info.Serial, info.IsEmulator)
	printSetupSuccess(fmt.Sprintf("Connected to %s %s (SDK %s)", info.Brand, info.Model, info.SDK))
	return dev, nil
}

// newDescriber creates the description service client. Without an API key
// it returns nil and the agent works from the UI tree alone.
func newDescriber(ctx context.Context, cfg *config.Config) (*vision.Client, error) {
	if cfg.Vision.APIKey == "" {
		printWarning("No Gemini API key: screens are read from the UI tree only")
		return nil, nil
	}
	client, err := vision.New(ctx, vision.Options{
		APIKey:            cfg.Vision.APIKey,
		Model:             cfg.Vision.Model,
		RequestsPerMinute: cfg.Vision.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("create description service: %w", err)
	}
	printSetupSuccess(fmt.Sprintf("Description service: %s", client.Model()))
	return client, nil
}

// newAgent wires the device, description service, speech channel and task
// archive into an Agent.
func newAgent(ctx context.Context, cfg *config.Config, noColor bool) (*agent.Agent, core.Speech, error) {
	dev, err := connectDevice(ctx, cfg.Device.Serial)
	if err != nil {
		return nil, nil, err
	}
	client, err := newDescriber(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	speech, err := voice.New(os.Stdin, os.Stdout, voice.Options{
		Backend:    cfg.Voice.STTBackend,
		SpeechRate: cfg.Voice.SpeechRate,
		NoColor:    noColor,
	})
	if err != nil {
		return nil, nil, err
	}

	deps := agent.Deps{
		Device:  dev,
		Apps:    device.NewApps(cfg.Apps),
		Speech:  speech,
		History: history.NewStore(afero.NewOsFs(), cfg.History.Dir),
	}
	// A nil *vision.Client must not become a non-nil interface
	if client != nil {
		deps.Describer = client
		deps.Decider = &agent.VisionDecider{Device: dev, Describer: client}
	}
	return agent.New(agentConfig(cfg), deps), speech, nil
}
