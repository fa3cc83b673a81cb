package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	cli "github.com/spf13/pflag"

	"kaia/internal/assistant"
	"kaia/internal/audio"
	"kaia/internal/config"
	"kaia/internal/engine"
	"kaia/internal/ipc"
	"kaia/internal/logging"
	"kaia/internal/nlu"
	"kaia/internal/notify"
	"kaia/internal/permission"
	"kaia/internal/proxy"
	"kaia/internal/relay"
	"kaia/internal/speech"
	"kaia/internal/tts"
	"kaia/pkg/stt"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	file := cli.StringP("file", "f", "", "Transcribe an audio file instead of the microphone")
	exec := cli.BoolP("exec", "x", false, "Connect to the local agent and allow command execution")
	model := cli.StringP("model", "m", "", "Whisper model path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the LLM")
	cli.Parse()

	logging.Setup(os.Stdout, *logLevel)
	log.Info("Booting up")

	if err := config.LoadEnv(*envFile); err != nil {
		log.Error("Failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if *model != "" {
		cfg.Whisper.ModelPath = *model
	}
	if *proxyAddr != "" {
		cfg.LLM.Proxy = *proxyAddr
	}

	whisper, err := stt.NewTranscriber(cfg.Whisper.ModelPath)
	if err != nil {
		log.Error("Failed to init whisper", "model", cfg.Whisper.ModelPath, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()
	log.Debug("Loaded whisper")

	opts := engine.DefaultOptions()
	opts.Language = cfg.Language()
	opts.Threads = cfg.Whisper.Threads

	var (
		eng      speech.Engine
		gate     *permission.Gate
		capOpts  []speech.Option
		speechCf = cfg.Speech()
	)
	if *file != "" {
		eng = engine.NewFile(*file, whisper, opts)
		speechCf.AutoRestart = false
	} else {
		mic := engine.NewMic(whisper, opts)
		if err := mic.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			os.Exit(1)
		}
		defer mic.Close()
		eng = mic
		gate = permission.NewGate(permission.PortAudioProber{SampleRate: float64(opts.VAD.SampleRate)})
		capOpts = append(capOpts, speech.WithPermissions(gate))
	}

	wd, _ := os.Getwd()
	acfg := assistant.Config{
		Classifier: classifier(cfg),
		Confirmer:  assistant.NewPrompt(os.Stdin, os.Stdout),
		Speaker:    tts.NewEspeak(cfg.Locale),
		Cue:        notify.NewBeeper(cfg.Cues.BeepFile),
		AgentURL:   cfg.AgentURL(),
		Sink:       relay.NewDisplay(os.Stdout),
		Cwd:        wd,
	}
	if cfg.Cues.Duck {
		acfg.Ducker = audio.NewDucker([]string{"kaia", "ALSA plug-in [kaia]"}, 10)
	}
	asst := assistant.New(acfg)

	capOpts = append(capOpts, speech.WithObserver(asst))
	capture := speech.NewCapture(eng, speechCf, capOpts...)
	defer capture.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exec {
		if err := asst.EnableExecution(ctx); err != nil {
			log.Warn("Agent unavailable, command execution disabled", "url", cfg.AgentURL(), "err", err)
		}
		defer asst.DisableExecution()
	}

	go asst.Run(ctx)

	if *file != "" {
		transcribeFile(ctx, capture, asst)
		return
	}

	ctl := assistant.Control{Capture: capture, Permissions: gate, Assistant: asst}
	srv, err := ipc.StartServer(cfg.Control.Socket, ctl.Handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	gate.OnGrant(capture.Start)
	if st := capture.RequestPermission(ctx); st != permission.Granted {
		log.Warn("Microphone not available, waiting for `kaia-ctl permission`", "state", st)
	}

	log.Info("Boot up - successful")
	<-ctx.Done()
	log.Info("Shutting down")
}

func classifier(cfg config.Config) nlu.Classifier {
	chain := nlu.Chain{nlu.Rules{}}
	if cfg.LLM.APIKey == "" {
		log.Debug("OPENAI_API_KEY not set, using rules only")
		return chain
	}

	httpClient, err := proxy.NewSocksClient(cfg.LLM.Proxy)
	if err != nil {
		log.Error("Failed to dial socks proxy, using rules only", "proxy", cfg.LLM.Proxy, "err", err)
		return chain
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.LLM.APIKey),
		option.WithHTTPClient(httpClient),
	)
	return append(chain, nlu.NewLLM(client, cfg.LLM.Model, shell(), cfg.Locale))
}

func shell() string {
	if runtime.GOOS == "windows" {
		return "Windows PowerShell"
	}
	return "POSIX sh"
}

// transcribeFile runs one pass over the file and handles its transcript.
func transcribeFile(ctx context.Context, capture *speech.Capture, asst *assistant.Assistant) {
	capture.Start()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for capture.Listening() {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}

	if e := capture.LastError(); e != nil {
		log.Error("Failed to transcribe file", "err", e)
		return
	}
	t := capture.Transcript()
	log.Info("Transcribed", "text", t.Final, "confidence", t.Confidence)
	if t.Final != "" {
		asst.Handle(ctx, t.Final)
	}
}
