// Command kiosk is a voice-driven food ordering terminal. It connects a
// realtime conversational model to a product catalog, a shared cart, and a
// stage renderer, and exposes a small command loop for driving the same tool
// pipeline without a microphone.
//
// Environment variables:
//
//	GEMINI_API_KEY         - required for voice ordering
//	KIOSK_CATALOG_URL      - product service base URL (default http://localhost:8000)
//	KIOSK_MODEL            - realtime model id
//	KIOSK_VOICE            - prebuilt voice name (default Aoede)
//	KIOSK_DEBUG            - enable debug output
//
// Commands:
//
//	v                - toggle the voice session
//	add <name> [n]   - add a product
//	remove <name> [n]- remove a product
//	menu [category]  - show a menu category
//	offers           - show saver deals
//	cart             - review the bucket
//	pay              - checkout
//	confirm          - confirm payment and reset
//	close / clear / q
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/bucketworks/kiosk/pkg/core/audio"
	"github.com/bucketworks/kiosk/pkg/core/cart"
	"github.com/bucketworks/kiosk/pkg/core/catalog"
	"github.com/bucketworks/kiosk/pkg/core/dispatch"
	"github.com/bucketworks/kiosk/pkg/core/live"
	"github.com/bucketworks/kiosk/pkg/core/providers/gemini"
	"github.com/bucketworks/kiosk/pkg/core/stage"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.CatalogBaseURL,
		MaxRetries: uint64(cfg.CatalogRetries),
	})
	cartStore := &cart.Store{}
	stageCtl := stage.NewController(catalogClient)
	dispatcher := dispatch.New(catalogClient, cartStore, stageCtl, dispatch.Config{}, logger)

	cartStore.OnChange = printCart
	stageCtl.OnChange = printStage

	voice := buildVoice(cfg, dispatcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner(voice != nil)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			shutdown(voice)
			return
		case line, ok := <-lines:
			if !ok {
				shutdown(voice)
				return
			}
			if quit := handleCommand(ctx, line, voice, dispatcher, cartStore, stageCtl); quit {
				shutdown(voice)
				return
			}
			fmt.Print("> ")
		}
	}
}

func shutdown(voice *voiceControl) {
	if voice != nil {
		if err := voice.manager.Stop(); err != nil {
			slog.Error("voice shutdown", "err", err)
		}
	}
	fmt.Println("Bye!")
}

func handleCommand(ctx context.Context, line string, voice *voiceControl, dispatcher *dispatch.Dispatcher, cartStore *cart.Store, stageCtl *stage.Controller) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "v", "voice":
		if voice == nil {
			fmt.Println("Voice ordering is disabled (set GEMINI_API_KEY and install ffmpeg).")
			return false
		}
		voice.toggle(ctx)
	case "cart":
		stageCtl.SetView(stage.ViewCart)
		printCart(cartStore.Items(), cartStore.Total())
	case "add", "remove":
		name, qty := splitNameQuantity(fields[1:])
		if name == "" {
			fmt.Printf("usage: %s <name> [quantity]\n", fields[0])
			return false
		}
		tool := "addToCart"
		if fields[0] == "remove" {
			tool = "removeFromCart"
		}
		args := map[string]any{"productId": name}
		if qty > 0 {
			args["quantity"] = float64(qty)
		}
		runTool(ctx, dispatcher, tool, args)
	case "menu":
		args := map[string]any{}
		if len(fields) > 1 {
			args["category"] = strings.Join(fields[1:], " ")
		}
		runTool(ctx, dispatcher, "showCategory", args)
	case "offers":
		runTool(ctx, dispatcher, "showOffers", nil)
	case "close":
		runTool(ctx, dispatcher, "closeMenu", nil)
	case "clear":
		runTool(ctx, dispatcher, "clearCart", nil)
	case "pay", "checkout":
		runTool(ctx, dispatcher, "checkout", nil)
	case "confirm", "paid":
		if err := confirmPayment(cartStore, stageCtl, voice); err != nil {
			fmt.Printf("Voice session error: %v\n", err)
		}
		fmt.Println("Payment confirmed. Thank you, order again soon!")
	case "help":
		printBanner(voice != nil)
	default:
		fmt.Printf("Unknown command %q (try help)\n", fields[0])
	}
	return false
}

// confirmPayment completes the order the way the bill screen's pay button
// does: the bucket empties, any open voice session ends, and the screen
// returns to idle.
func confirmPayment(cartStore *cart.Store, stageCtl *stage.Controller, voice *voiceControl) error {
	cartStore.Clear()
	var err error
	if voice != nil {
		err = voice.manager.Stop()
	}
	stageCtl.CloseMenu()
	return err
}

// splitNameQuantity interprets a trailing integer as the quantity.
func splitNameQuantity(fields []string) (string, int) {
	if len(fields) == 0 {
		return "", 0
	}
	if len(fields) > 1 {
		if qty, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return strings.Join(fields[:len(fields)-1], " "), qty
		}
	}
	return strings.Join(fields, " "), 0
}

func runTool(ctx context.Context, dispatcher *dispatch.Dispatcher, name string, args map[string]any) {
	responses := dispatcher.HandleBatch(ctx, []dispatch.ToolCall{{
		ID:   "cli_" + uuid.NewString(),
		Name: name,
		Args: args,
	}})
	for _, r := range responses {
		fmt.Println(r.Result)
	}
}

type voiceControl struct {
	manager *live.Manager
	logger  *slog.Logger
}

// buildVoice wires the realtime stack. Any missing prerequisite disables
// voice ordering; the text commands keep working.
func buildVoice(cfg kioskConfig, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *voiceControl {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, voice ordering disabled")
		return nil
	}
	mic, err := newFFmpegMic()
	if err != nil {
		logger.Warn("voice ordering disabled", "err", err)
		return nil
	}
	sink, err := newFFplaySink()
	if err != nil {
		logger.Warn("voice ordering disabled", "err", err)
		return nil
	}
	player := audio.NewPlayer(audio.PlayerConfig{
		Sink: sink,
		OnError: func(err error) {
			logger.Error("playback", "err", err)
		},
	})

	manager := live.NewManager(live.Config{
		Model:             cfg.Model,
		Voice:             cfg.Voice,
		SystemInstruction: systemInstruction(),
		Tools:             dispatch.Manifest(),
	}, gemini.NewClient(cfg.GeminiAPIKey), mic, dispatcher, player)
	if cfg.Debug {
		manager.EnableDebug()
	}
	return &voiceControl{manager: manager, logger: logger}
}

func (v *voiceControl) toggle(ctx context.Context) {
	session, started, err := v.manager.Toggle(ctx)
	if err != nil {
		fmt.Printf("Voice session error: %v\n", err)
		return
	}
	if started {
		fmt.Println("🎤 Listening... (v to stop)")
		go v.drainEvents(session)
	} else {
		fmt.Println("Voice session stopped.")
	}
}

func (v *voiceControl) drainEvents(session *live.Session) {
	for ev := range session.Events() {
		switch e := ev.(type) {
		case *live.TurnCompleteEvent:
			if e.Transcript != "" {
				fmt.Printf("\n🤖 %s\n> ", e.Transcript)
			}
		case *live.ErrorEvent:
			fmt.Printf("\nVoice session failed: %s\n> ", e.Err)
		case *live.SessionClosedEvent:
			return
		}
	}
}

func printCart(items []cart.LineItem, total int) {
	if len(items) == 0 {
		fmt.Println("🪣 Bucket is empty.")
		return
	}
	fmt.Println("🪣 Bucket:")
	for _, it := range items {
		fmt.Printf("   %dx %-30s ₹%d\n", it.Quantity, it.Product.Name, it.Product.Price*it.Quantity)
	}
	fmt.Printf("   Total: ₹%d\n", total)
}

func printStage(st stage.State) {
	switch st.View {
	case stage.ViewMenuPicker:
		label := st.Filters.Category
		if st.Filters.DietType != "" {
			label += " (" + st.Filters.DietType + ")"
		}
		fmt.Printf("📺 Menu: %s\n", label)
		for _, p := range st.Products {
			fmt.Printf("   #%-4s %-30s ₹%d\n", p.ID, p.Name, p.Price)
		}
	case stage.ViewCart:
		fmt.Println("📺 Bucket review")
	case stage.ViewBill:
		fmt.Println("📺 Final bill")
	case stage.ViewIdle:
		fmt.Println("📺 Screen idle")
	}
}

func printBanner(voiceEnabled bool) {
	fmt.Println("KFC Smart Kiosk")
	fmt.Println("  v                 toggle voice ordering")
	fmt.Println("  add <name> [n]    add a product")
	fmt.Println("  remove <name> [n] remove a product")
	fmt.Println("  menu [category]   show a category")
	fmt.Println("  offers            show saver deals")
	fmt.Println("  cart              review the bucket")
	fmt.Println("  pay               checkout")
	fmt.Println("  confirm           confirm payment and reset")
	fmt.Println("  close, clear, q")
	if !voiceEnabled {
		fmt.Println("  (voice ordering disabled)")
	}
}
