package main

import (
	"fmt"
	"time"

	"github.com/kardianos/service"
)

// serviceStopTimeout bounds how long Stop waits for run to return.
const serviceStopTimeout = 45 * time.Second

// Program implements service.Interface, running the server under the
// platform service manager (systemd, launchd or the Windows SCM).
type Program struct {
	stop chan struct{}
	exit chan struct{}
	code int
}

// Start is called when the service is started. It must not block.
func (p *Program) Start(s service.Service) error {
	p.stop = make(chan struct{})
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		p.code = run(p.stop)
	}()
	return nil
}

// Stop asks run to shut down and waits for it to finish.
func (p *Program) Stop(s service.Service) error {
	close(p.stop)

	select {
	case <-p.exit:
		if p.code != 0 {
			return fmt.Errorf("server exited with code %d", p.code)
		}
		return nil
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// ServiceConfig returns the service definition.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "StegaServer",
		DisplayName: "Stega Watermark Server",
		Description: "Embeds and recovers invisible StegaStamp watermarks over HTTP",
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

func newService() (service.Service, error) {
	s, err := service.New(&Program{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService hands control to the service manager until it stops us.
func RunAsService() error {
	s, err := newService()
	if err != nil {
		return err
	}
	if err := s.Run(); err != nil {
		return fmt.Errorf("service run failed: %w", err)
	}
	return nil
}

// serviceActions maps command names to service control calls.
var serviceActions = map[string]struct {
	do   func(service.Service) error
	done string
}{
	"install":   {service.Service.Install, "Service installed successfully"},
	"uninstall": {service.Service.Uninstall, "Service uninstalled successfully"},
	"start":     {service.Service.Start, "Service started successfully"},
	"stop":      {service.Service.Stop, "Service stopped successfully"},
	"restart":   {service.Service.Restart, "Service restarted successfully"},
}

// HandleServiceCommand runs a service control command and returns the
// message to print.
func HandleServiceCommand(command string) (string, error) {
	s, err := newService()
	if err != nil {
		return "", err
	}

	if command == "status" {
		status, err := s.Status()
		if err != nil {
			return "", fmt.Errorf("failed to get service status: %w", err)
		}
		return "Service status: " + statusString(status), nil
	}

	action, ok := serviceActions[command]
	if !ok {
		return "", fmt.Errorf("unknown service command: %s", command)
	}
	if err := action.do(s); err != nil {
		return "", fmt.Errorf("failed to %s service: %w", command, err)
	}
	return action.done, nil
}

func statusString(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
