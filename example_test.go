package gddns_test

import (
	"context"
	"log"
	"net/netip"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Travis-Britz/gddns"
)

func ExampleUpdater() {
	client, err := gddns.NewDynDNS2Client(
		"https://dyndns.example.com/nic/update",
		gddns.BasicAuth{Username: "user", Password: os.Getenv("DYNDNS_PASSWORD")},
		nil, nil,
	)
	if err != nil {
		log.Fatalf("error creating dyndns2 client: %s", err)
	}
	ip, err := gddns.DefaultResolver.Resolve(context.Background())
	if err != nil {
		log.Fatalf("error looking up public IP: %s", err)
	}

	u := &gddns.Updater{Cache: gddns.NewResponseCache("/var/cache/gddns")}
	// run once:
	host := gddns.Host{Name: "dynamic-ip.example.com", Client: client, ServerBackoff: gddns.DefaultServerBackoff}
	if err := u.UpdateHost(context.Background(), host, ip); err != nil {
		log.Fatalf("ddns update failed: %s", err)
	}
}

func ExampleWebResolver() {
	// If possible, run your own service and provide the URL here instead.
	r, err := gddns.WebResolver(
		"https://checkip.amazonaws.com/",
		"https://icanhazip.com/",
		"https://ipinfo.io/ip",
	)
	if err != nil {
		log.Fatal(err)
	}
	ip, err := r.Resolve(context.Background())
	if err != nil {
		log.Fatalf("resolvers did not agree: %s", err)
	}
	log.Println("public IP:", ip)
}

func ExampleDaemon() {
	logger, _ := zap.NewProduction()
	client, err := gddns.NewCloudflareClient(os.Getenv("CLOUDFLARE_ZONE_TOKEN"), nil, logger)
	if err != nil {
		log.Fatalf("error creating cloudflare client: %s", err)
	}
	cache := gddns.NewResponseCache("/var/cache/gddns", gddns.CacheWithLogger(logger))

	// run every 5 minutes and stop after an hour:
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Hour)
	defer cancel()
	if err := cache.Watch(ctx); err != nil {
		log.Fatal(err)
	}
	defer cache.Close()

	d := &gddns.Daemon{
		Updater:  &gddns.Updater{Cache: cache, Logger: logger},
		Resolver: gddns.InterfaceResolver("eth0"),
		Hosts:    []gddns.Host{{Name: "dynamic-local-ip.example.com", Client: client, ServerBackoff: gddns.DefaultServerBackoff}},
		Interval: 5 * time.Minute,
		Logger:   logger,
	}
	d.Run(ctx)
}

func ExampleResolverFunc() {
	fn := func(ctx context.Context) (netip.Addr, error) {
		select {
		case <-ctx.Done():
			return netip.Addr{}, ctx.Err()
		case <-time.After(100 * time.Millisecond): // simulating some lookup method
			return netip.ParseAddr("10.0.0.10")
		}
	}
	ip, err := gddns.ResolverFunc(fn).Resolve(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	log.Println(ip)
}
