package main

import (
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"voiceorb/internal/webui"
)

var logLevel = new(slog.LevelVar)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	app := NewApp()
	err := wails.Run(&options.App{
		Title:     "voiceorb",
		Width:     420,
		Height:    520,
		MinWidth:  320,
		MinHeight: 400,
		AssetServer: &assetserver.Options{
			Assets: webui.FS(),
		},
		BackgroundColour: &options.RGBA{R: 13, G: 15, B: 20, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		slog.Error("application exited with error", "err", err)
		os.Exit(1)
	}
}
