// widget-verify validates every signature file in a widget package
// directory and prints the verdict for each, following the teacher's
// small flag-driven command idiom (see cmd/config.go's consumers) rather
// than the gRPC-service shape of the teacher's server binaries, since this
// driver runs once per invocation instead of serving traffic.
package main

import (
	"context"
	"crypto/x509"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wacapps/vcore/metrics"
	"github.com/wacapps/vcore/revocation"
	"github.com/wacapps/vcore/signature"
	"github.com/wacapps/vcore/trust"
	"github.com/wacapps/vcore/validator"
	"github.com/wacapps/vcore/vcfg"
	"github.com/wacapps/vcore/vcorelog"
	"github.com/wacapps/vcore/xmldsig"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	pkgDir := flag.String("pkg", "", "path to the widget package directory to validate")
	ocsp := flag.Bool("ocsp", true, "enable OCSP revocation checking")
	crl := flag.Bool("crl", true, "enable CRL revocation checking")
	compliance := flag.Bool("compliance-mode", false, "skip revocation checking entirely")
	flag.Parse()

	log := vcorelog.Get()

	if *configPath == "" || *pkgDir == "" {
		fmt.Fprintln(os.Stderr, "usage: widget-verify -config <file> -pkg <dir>")
		os.Exit(2)
	}

	cfg, err := vcfg.Load(*configPath)
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}

	anchorDoc, err := os.ReadFile(cfg.TrustAnchorFile)
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}
	trustStore, err := trust.Load(anchorDoc)
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}

	roots := x509.NewCertPool()
	if cfg.RootCAFile != "" {
		rootPEM, err := os.ReadFile(cfg.RootCAFile)
		if err != nil {
			log.WarningErr(err)
			os.Exit(1)
		}
		if !roots.AppendCertsFromPEM(rootPEM) {
			log.Warning("no certificates parsed from root CA file")
		}
	}

	registry := prometheus.NewRegistry()
	stats := metrics.NewPromScope(registry, "WidgetVerify")
	if cfg.Stats.ListenAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			log.WarningErr(http.ListenAndServe(cfg.Stats.ListenAddress, mux))
		}()
	}

	dbMap, err := revocation.OpenCacheDB(cfg.DBConnect.String())
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}
	cache := revocation.NewCache(dbMap, clock.New()).WithStats(stats)

	ocspClient := revocation.NewOCSPClient().WithStats(stats)
	if uri, ok := cfg.OCSPDefaultResponderURI(); ok {
		ocspClient.DefaultResponderURI = uri
		ocspClient.DefaultResponderEnabled = true
	}
	crlClient := revocation.NewCRLClient().WithStats(stats)
	verifier := revocation.NewVerifier(ocspClient, crlClient, cache)

	v := validator.New(trustStore, validator.NewChainCompletionCache(), xmldsig.NewAdapter(), verifier, roots, log).WithStats(stats)

	found, err := signature.Find(*pkgDir)
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}
	if len(found) == 0 {
		fmt.Fprintln(os.Stderr, "no signature files found")
		os.Exit(1)
	}

	reader := signature.NewReader()
	flags := validator.Flags{OCSPEnabled: *ocsp, CRLEnabled: *crl, ComplianceMode: *compliance}

	exitCode := 0
	for _, f := range found {
		data, err := reader.Parse(f, filepath.Join(*pkgDir, f.Filename))
		if err != nil {
			log.WarningErr(err)
			exitCode = 1
			continue
		}

		verdict, err := v.Check(context.Background(), data, *pkgDir, flags)
		if err != nil {
			log.WarningErr(err)
			exitCode = 1
			continue
		}

		log.Auditf("%s: %s", f.Filename, verdict)
		fmt.Printf("%s: %s\n", f.Filename, verdict)
		if verdict != validator.Verified {
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}
