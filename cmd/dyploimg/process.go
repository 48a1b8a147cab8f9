package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/eventloop"
	"github.com/topic-embedded-products/dyplo/metric"
)

type processCommand struct {
	in          string
	out         string
	width       int
	height      int
	stride      int
	format      string
	filter      string
	async       bool
	timeout     time.Duration
	configPath  string
	metricsAddr string
	dump        bool
}

func (cmd *processCommand) Name() string {
	return "process"
}

func (cmd *processCommand) Help() string {
	return "Process raw image with a filter"
}

func (cmd *processCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.in, "in", "", "input raw image (required)")
	fs.StringVar(&cmd.out, "out", "", "output file to save processed image (required)")
	fs.IntVar(&cmd.width, "width", 0, "image width in pixels (required)")
	fs.IntVar(&cmd.height, "height", 0, "image height in pixels (required)")
	fs.IntVar(&cmd.stride, "stride", 0, "bytes per row, tightly packed if not set")
	fs.StringVar(&cmd.format, "format", dyplo.Gray8.String(), "pixel format: gray8, rgb888, rgb32 or argb32")
	fs.StringVar(&cmd.filter, "filter", "", "filter to program, loopback if empty")
	fs.BoolVar(&cmd.async, "async", false, "deliver result through event loop")
	fs.DurationVar(&cmd.timeout, "timeout", 10*time.Second, "async result timeout")
	fs.StringVar(&cmd.configPath, "config", "", "path to YAML config")
	fs.StringVar(&cmd.metricsAddr, "metrics-addr", "", "serve prometheus metrics on address while processing")
	fs.BoolVar(&cmd.dump, "dump", false, "print loaded configuration")
}

func (cmd *processCommand) Validate() error {
	var message string
	if cmd.in == "" {
		message = message + "Missing -in required flag\n"
	}
	if cmd.out == "" {
		message = message + "Missing -out required flag\n"
	}
	if cmd.width <= 0 || cmd.height <= 0 {
		message = message + "Missing -width and -height required flags\n"
	}
	if message != "" {
		return errors.New(message)
	}
	return nil
}

func (cmd *processCommand) image() (dyplo.Image, error) {
	format, err := dyplo.ParsePixelFormat(cmd.format)
	if err != nil {
		return dyplo.Image{}, err
	}
	shape := dyplo.NewShape(cmd.width, cmd.height, format)
	if cmd.stride > 0 {
		shape.Stride = cmd.stride
	}
	pix, err := os.ReadFile(cmd.in)
	if err != nil {
		return dyplo.Image{}, err
	}
	img := dyplo.Image{Pix: pix, Shape: shape}
	return img, img.Validate()
}

func (cmd *processCommand) Run() error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	img, err := cmd.image()
	if err != nil {
		return err
	}
	env, err := setup(cmd.configPath, cmd.dump)
	if err != nil {
		return err
	}
	defer env.close()

	filter := cmd.filter
	if filter == "" {
		filter = env.cfg.Pipeline.Filter
	}
	addr := cmd.metricsAddr
	if addr == "" {
		addr = env.cfg.Metrics.Addr
	}
	registry := prometheus.NewRegistry()
	m, err := metric.New(registry)
	if err != nil {
		return err
	}
	options := []dyplo.Option{
		dyplo.WithName("dyploimg"),
		dyplo.WithLogger(env.log),
		dyplo.WithMetrics(m),
		dyplo.WithBufferCount(env.cfg.Pipeline.BufferCount),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if addr != "" {
		serveMetrics(ctx, g, addr, registry, env.log)
	}
	var result dyplo.Image
	g.Go(func() error {
		defer cancel()
		var err error
		if cmd.async {
			result, err = processAsync(ctx, env, img, filter, cmd.timeout, options...)
		} else {
			result, err = processSync(env, img, filter, options...)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := os.WriteFile(cmd.out, result.Pix, 0o644); err != nil {
		return err
	}
	env.log.WithFields(logrus.Fields{
		"shape":  result.Shape.String(),
		"filter": filter,
		"out":    cmd.out,
	}).Info("image processed")
	return nil
}

// outcome is a copy of processing result.
type outcome struct {
	img dyplo.Image
	err error
}

func collect(done chan<- outcome) dyplo.ResultFunc {
	return func(r dyplo.Result) {
		if r.Err != nil {
			done <- outcome{err: r.Err}
			return
		}
		done <- outcome{img: r.View.Clone()}
	}
}

func processSync(env *environment, img dyplo.Image, filter string, options ...dyplo.Option) (dyplo.Image, error) {
	done := make(chan outcome, 1)
	p := dyplo.NewProcessor(env.provider, collect(done), options...)
	if err := p.ProcessSync(img, filter); err != nil {
		return dyplo.Image{}, err
	}
	o := <-done
	return o.img, o.err
}

func processAsync(ctx context.Context, env *environment, img dyplo.Image, filter string, timeout time.Duration, options ...dyplo.Option) (dyplo.Image, error) {
	loop := eventloop.New(eventloop.WithLogger(env.log))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	done := make(chan outcome, 1)
	p := dyplo.NewProcessor(env.provider, collect(done), append(options, dyplo.WithEventLoop(loop))...)
	var o outcome
	g.Go(func() error {
		// loop must stop when processing is over
		defer loop.Close()
		var err error
		if doErr := loop.Do(ctx, func() {
			if err = p.CreatePipeline(filter); err == nil {
				err = p.ProcessAsync(img)
			}
		}); doErr != nil {
			return doErr
		}
		if err == nil {
			select {
			case o = <-done:
			case <-ctx.Done():
				err = fmt.Errorf("wait for result: %w", ctx.Err())
			}
		}
		var releaseErr error
		doErr := loop.Do(context.Background(), func() {
			releaseErr = p.ReleasePipeline()
		})
		if errors.Is(doErr, eventloop.ErrClosed) {
			// nothing runs on the loop anymore
			releaseErr = p.ReleasePipeline()
		}
		if err != nil {
			return err
		}
		if o.err != nil {
			return o.err
		}
		return releaseErr
	})
	if err := g.Wait(); err != nil {
		return dyplo.Image{}, err
	}
	return o.img, nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, r *prometheus.Registry, l logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		l.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
