package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"solana-ca-sniper/internal/detector"
)

// Feeds a message through the address detector and prints what the bot
// would act on. Text comes from argv or stdin.
func main() {
	var text string
	if len(os.Args) > 1 {
		text = strings.Join(os.Args[1:], " ")
	} else {
		reader := bufio.NewReader(os.Stdin)
		raw, _ := reader.ReadString('\x00')
		text = strings.TrimSpace(raw)
	}

	if text == "" {
		color.Red("❌ No input text provided")
		os.Exit(1)
	}

	fmt.Println("----------------------------------------")
	fmt.Println("🔍 SCANNING MESSAGE")
	fmt.Println("----------------------------------------")
	fmt.Printf("Input: %s\n\n", text)

	det := detector.New(detector.Gates{
		Pumpfun:  true,
		Moonshot: true,
		Raydium:  true,
		Native:   true,
	})

	candidates := det.Detect(text)
	if len(candidates) == 0 {
		color.Yellow("⚠️  No contract address found")
		os.Exit(0)
	}

	color.Green("✅ %d CANDIDATE(S) FOUND", len(candidates))
	for _, cand := range candidates {
		fmt.Printf("CA:         %s\n", cand.Address)
		fmt.Printf("Platform:   %s\n", cand.Platform)
		fmt.Printf("Confidence: %.1f\n", cand.Confidence)
		fmt.Println("----------------------------------------")
	}

	first := candidates[0]
	if first.Platform == detector.PlatformNative {
		color.Blue("🎯 MATCH: address found, no platform mention (fallback)")
	} else {
		color.Green("🎯 MATCH: %s signal", strings.ToUpper(string(first.Platform)))
	}
}
