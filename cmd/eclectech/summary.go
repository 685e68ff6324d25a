package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/MrWong99/eclectech/internal/config"
)

const summaryWidth = 24

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Eclectech · startup summary         ║")
	fmt.Fprintln(w, "╠════════════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM)
	printRow(w, "LLM fallbacks", strconv.Itoa(len(cfg.Providers.LLMFallbacks)))
	printProvider(w, "STT", cfg.Providers.STT)
	printProvider(w, "Transcriber", cfg.Providers.Transcriber)
	printRow(w, "Cache", string(cfg.Cache.Backend))
	printRow(w, "Captions", string(cfg.Captions.Mode))
	if cfg.Events.AMQPURL != "" {
		printRow(w, "Events", "amqp / "+cfg.Events.Exchange)
	} else {
		printRow(w, "Events", "(disabled)")
	}
	addr := cfg.Server.ListenAddr
	if cfg.Server.TLS != nil {
		addr += " (tls)"
	}
	printRow(w, "Listen addr", addr)
	fmt.Fprintln(w, "╚════════════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, entry config.ProviderEntry) {
	value := entry.Name
	if value == "" {
		value = "(not configured)"
	} else if entry.Model != "" {
		value = entry.Name + " / " + entry.Model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > summaryWidth {
		value = string(r[:summaryWidth-1]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s : %-*s ║\n", label, summaryWidth, value)
}
