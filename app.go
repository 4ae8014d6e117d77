package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voiceorb/internal/bootstrap"
	"voiceorb/internal/config"
	"voiceorb/internal/domain"
	"voiceorb/internal/usecase"
)

const (
	eventConnection   = "voiceorb:connection"
	eventConversation = "voiceorb:conversation"
	eventTranscript   = "voiceorb:transcript"
	eventError        = "voiceorb:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	logLevel.Set(services.Config.Log.SlogLevel())
	a.cfg = services.Config
	a.controller = services.Controller
	a.ConversationChanged(domain.ConversationIdle)
}

// shutdown releases the microphone and closes the connection when the window
// goes away.
func (a *App) shutdown(_ context.Context) {
	if a.controller == nil {
		return
	}
	if err := a.controller.Stop(); err != nil {
		slog.Warn("stop on shutdown failed", "err", err)
	}
}

// StartStreaming opens the microphone and connects to the voice service.
func (a *App) StartStreaming() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopStreaming ends the active session.
func (a *App) StopStreaming() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Stop(); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.IdleStatus()
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"endpoint":           a.cfg.Transport.Endpoint,
		"reconnectAttempts":  strconv.Itoa(a.cfg.Transport.ReconnectAttempts),
		"audioBackend":       a.cfg.Audio.Backend,
		"audioInput":         a.cfg.Audio.InputDevice,
		"audioInputFormat":   a.cfg.Audio.InputFormat,
		"sampleRate":         strconv.Itoa(a.cfg.Audio.SampleRate),
		"playbackSampleRate": strconv.Itoa(a.cfg.Playback.SampleRate),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ConnectionChanged emits connection transitions to the frontend.
func (a *App) ConnectionChanged(state domain.ConnectionState, reason domain.StatusReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConnection, connectionPayload(state, reason))
}

// ConversationChanged emits orb state changes.
func (a *App) ConversationChanged(state domain.ConversationState) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConversation, map[string]string{
		"state":   string(state),
		"message": state.Message(),
	})
}

// Transcript emits recognized user speech. Empty text marks a turn without a
// transcript.
func (a *App) Transcript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": domain.ErrorMessage(code, detail),
		"detail":  detail,
	})
}

func connectionPayload(state domain.ConnectionState, reason domain.StatusReason) map[string]any {
	return map[string]any{
		"state":    string(state),
		"reason":   string(reason),
		"message":  reason.Message(),
		"terminal": reason.Terminal(),
	}
}
