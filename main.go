package main

import (
	"context"
	"embed"
	"flag"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/emoji-arcade/bindings"
	"github.com/MJE43/emoji-arcade/internal/config"
	"github.com/MJE43/emoji-arcade/internal/daemon"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	docsURL = "https://github.com/MJE43/emoji-arcade/blob/main/README.md"
	repoURL = "https://github.com/MJE43/emoji-arcade"
)

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex

	// dataDir is opened by the File menu.
	dataDir string

	mainLog zerolog.Logger
)

// buildWindowsOptions configures Windows-specific application settings
func buildWindowsOptions() *windows.Options {
	return &windows.Options{
		// Modern Windows 11 Mica backdrop effect
		BackdropType: windows.Mica,

		// Theme Settings
		Theme: windows.SystemDefault,

		// Custom theme colors for light/dark mode
		CustomTheme: &windows.ThemeSettings{
			// Dark mode (matches app background)
			DarkModeTitleBar:  windows.RGB(27, 38, 54),
			DarkModeTitleText: windows.RGB(226, 232, 240),
			DarkModeBorder:    windows.RGB(51, 65, 85),

			// Light mode
			LightModeTitleBar:  windows.RGB(248, 250, 252),
			LightModeTitleText: windows.RGB(15, 23, 42),
			LightModeBorder:    windows.RGB(226, 232, 240),
		},

		// WebView Configuration
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,

		// DPI and Zoom
		DisablePinchZoom:     false,
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,

		// Window Decorations
		DisableWindowIcon:                 false,
		DisableFramelessWindowDecorations: false,

		// Window Class Name
		WindowClassName: "EmojiArcadeWindow",

		// Power Management Callbacks
		OnSuspend: func() {
			mainLog.Info().Msg("entering low power mode")
		},
		OnResume: func() {
			mainLog.Info().Msg("resuming from low power mode")
		},
	}
}

// buildMacOptions configures macOS-specific application settings
func buildMacOptions() *mac.Options {
	// Load icon for About dialog
	iconData, err := assets.ReadFile("frontend/dist/assets/logo.png")
	var aboutIcon []byte
	if err == nil {
		aboutIcon = iconData
	}

	return &mac.Options{
		// Title Bar Configuration
		TitleBar: &mac.TitleBar{
			TitlebarAppearsTransparent: false,
			HideTitle:                  false,
			HideTitleBar:               false,
			FullSizeContent:            false,
			UseToolbar:                 false,
			HideToolbarSeparator:       true,
		},

		// Appearance - Follow system theme
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,

		// About Dialog
		About: &mac.AboutInfo{
			Title: "Emoji Arcade",
			Message: "Eight quick emoji mini-games with local best scores.\n\n" +
				"Built with Wails\n\n" +
				"Scores and history stay on this machine.",
			Icon: aboutIcon,
		},
	}
}

// buildLinuxOptions configures Linux-specific application settings
func buildLinuxOptions() *linux.Options {
	// Load icon for window manager
	iconData, err := assets.ReadFile("frontend/dist/assets/logo.png")
	var windowIcon []byte
	if err == nil {
		windowIcon = iconData
	}

	return &linux.Options{
		// Window Icon
		Icon: windowIcon,

		// WebView Configuration
		WindowIsTranslucent: false,
		WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,

		// Program Name for window managers
		ProgramName: "emoji-arcade",
	}
}

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	xlog.Configure(xlog.Config{Level: "info", Service: "emoji-arcade"})
	mainLog = xlog.WithComponent("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		mainLog.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}
	if err := xlog.SetLevel(cfg.LogLevel); err != nil {
		mainLog.Warn().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level; keeping info")
	}
	mainLog.Info().Str("go", runtime.Version()).Msg("starting Emoji Arcade")
	dataDir = cfg.DataDir

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("arcade bootstrap failed")
	}
	arcadeMod := bindings.NewArcadeModule(app.Hub, app.History)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := app.Run(ctx); err != nil {
			mainLog.Warn().Err(err).Msg("content watcher stopped")
		}
	}()

	startup := func(ctx context.Context) {
		setAppContext(ctx)
		arcadeMod.Startup(ctx)
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		arcadeMod.Shutdown()
		setAppContext(nil)
		mainLog.Info().Msg("application is closing")
		return false
	}

	if err := wails.Run(&options.App{
		// Window Configuration
		Title:             "Emoji Arcade",
		Width:             1280,
		Height:            800,
		MinWidth:          960,
		MinHeight:         640,
		MaxWidth:          2560,
		MaxHeight:         1440,
		WindowStartState:  options.Normal,
		Frameless:         false,
		DisableResize:     false,
		Fullscreen:        false,
		StartHidden:       false,
		HideWindowOnClose: false,
		AlwaysOnTop:       false,
		BackgroundColour:  &options.RGBA{R: 27, G: 38, B: 54, A: 255},

		// Asset Server
		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		// Application Lifecycle
		OnStartup:     startup,
		OnBeforeClose: beforeClose,
		OnShutdown: func(ctx context.Context) {
			mainLog.Info().Msg("application shutdown complete")
		},

		// Menu
		Menu: buildAppMenu(),

		// Bindings
		Bind: []interface{}{arcadeMod},

		// Logging
		LogLevel:           logger.INFO,
		LogLevelProduction: logger.ERROR,

		// User Experience
		EnableDefaultContextMenu:         false,
		EnableFraudulentWebsiteDetection: false,

		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		// Single Instance Lock: two instances would race on the record store.
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "5b0e6c1a-3f7d-4e92-a8c4-emoji-arcade",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				mainLog.Info().Strs("args", data.Args).Msg("second instance launch prevented")
			},
		},

		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     false,
			DisableWebViewDrop: true,
		},

		// Platform-Specific Options
		Windows: buildWindowsOptions(),
		Mac:     buildMacOptions(),
		Linux:   buildLinuxOptions(),
	}); err != nil {
		mainLog.Error().Err(err).Msg("error running Wails app")
	}

	cancel()
	<-watchDone
	if err := app.Close(); err != nil {
		mainLog.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
	mainLog.Info().Msg("application exited normally")
}

func buildAppMenu() *menu.Menu {
	rootMenu := menu.NewMenu()

	if runtime.GOOS == "darwin" {
		if appMenu := menu.AppMenu(); appMenu != nil {
			rootMenu.Append(appMenu)
		}
	}

	fileMenu := menu.NewMenu()
	fileMenu.AddText("Open Data Directory", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			openPathInExplorer(ctx, dataDir)
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.Quit(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("File", fileMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload Frontend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.WindowReloadApp(ctx)
		})
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			toggleFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	helpMenu := menu.NewMenu()
	helpMenu.AddText("Documentation", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, docsURL)
		})
	})
	helpMenu.AddText("Project Repository", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, repoURL)
		})
	})
	rootMenu.Append(menu.SubMenu("Help", helpMenu))

	return rootMenu
}

func openPathInExplorer(ctx context.Context, path string) {
	if path == "" {
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		mainLog.Warn().Err(err).Str("path", path).Msg("resolve path failed")
		abs = path
	}

	wruntime.BrowserOpenURL(ctx, fileURI(abs))
}

func fileURI(path string) string {
	clean := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}

	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

func toggleFullscreen(ctx context.Context) {
	if wruntime.WindowIsFullscreen(ctx) {
		wruntime.WindowUnfullscreen(ctx)
		return
	}
	wruntime.WindowFullscreen(ctx)
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		mainLog.Debug().Msg("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}
