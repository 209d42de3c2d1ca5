// Command userscript-proxy runs an HTTP/HTTPS interception proxy that
// injects userscripts into HTML pages passing through it.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/yucer/userscript-proxy/certgen"
	"github.com/yucer/userscript-proxy/certstore"
	"github.com/yucer/userscript-proxy/config"
	"github.com/yucer/userscript-proxy/injector"
	"github.com/yucer/userscript-proxy/internal/app"
	"github.com/yucer/userscript-proxy/loader"
	"github.com/yucer/userscript-proxy/proxy"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", "config.yaml", "path to the configuration file")
	host := flag.String("host", "", "address to listen on")
	port := flag.IntP("port", "p", -1, "port to listen on")
	scriptDirs := flag.StringArrayP("script-dir", "d", nil, "directory with *.user.js files (repeatable)")
	forceInline := flag.Bool("force-inline", false, "inject scripts with a download URL inline anyway")
	applyUnscoped := flag.Bool("apply-unscoped", false, "apply scripts without match/include patterns to every page")
	uninstallCA := flag.Bool("uninstall-ca", false, "remove the CA from the trust stores and exit")
	version := flag.BoolP("version", "v", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", app.Name, app.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if len(*scriptDirs) > 0 {
		cfg.ScriptDirs = *scriptDirs
	}
	if *forceInline {
		cfg.ForceInline = true
	}
	if *applyUnscoped {
		cfg.ApplyUnscoped = true
	}

	store := certstore.NewDiskCertStore(cfg.CADir)

	if *uninstallCA {
		if err := store.UninstallTrust(); err != nil {
			return fmt.Errorf("uninstall CA: %w", err)
		}
		log.Print("CA removed from trust stores")
		return nil
	}

	if err := store.Init(); err != nil {
		return fmt.Errorf("init cert store: %w", err)
	}
	if err := store.InstallTrust(); err != nil {
		log.Printf("CA not installed into trust stores: %v", err)
		log.Printf("import %s into your client manually", store.CertPath())
	}

	scripts, err := loader.Load(cfg.ScriptDirs)
	if err != nil {
		// Partial failures are already logged per file; startup proceeds
		// with whatever loaded.
		log.Printf("some scripts failed to load: %v", err)
	}

	inj := injector.New(scripts, injector.Config{
		ForceInline:   cfg.ForceInline,
		ApplyUnscoped: cfg.ApplyUnscoped,
	})

	cg, err := certgen.NewCertGenerator(store)
	if err != nil {
		return fmt.Errorf("create cert generator: %w", err)
	}

	p, err := proxy.NewProxy(inj, cg, cfg.Host, cfg.Port)
	if err != nil {
		return fmt.Errorf("create proxy: %w", err)
	}
	actualPort, err := p.Start()
	if err != nil {
		return fmt.Errorf("start proxy: %w", err)
	}

	printBanner(cfg.Host, actualPort, len(inj.Scripts()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Print("shutting down")
	if err := p.Stop(); err != nil {
		return fmt.Errorf("stop proxy: %w", err)
	}
	return nil
}

func printBanner(host string, port, scriptCount int) {
	lines := []string{
		fmt.Sprintf("%s v%s", app.Name, app.Version),
		fmt.Sprintf("listening on %s:%d", host, port),
		fmt.Sprintf("%d userscript(s) active", scriptCount),
	}

	width := 0
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}

	fmt.Println("╔" + strings.Repeat("═", width+2) + "╗")
	for _, line := range lines {
		fmt.Printf("║ %-*s ║\n", width, line)
	}
	fmt.Println("╚" + strings.Repeat("═", width+2) + "╝")
}
