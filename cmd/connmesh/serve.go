package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/connmesh/connmesh/internal/bus"
	"github.com/connmesh/connmesh/internal/platform/config"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/transport"
	_ "github.com/connmesh/connmesh/transport/transports"
)

const (
	flagTransport        = "transport"
	flagKafkaBrokers     = "kafka-brokers"
	flagKafkaGroup       = "kafka-consumer-group"
	flagNATSURL          = "nats-url"
	flagRabbitMQURL      = "rabbitmq-url"
	flagRPCTimeout       = "rpc-timeout"
	flagSharedReplyTopic = "shared-reply-topic"
	flagPoisonQueue      = "poison-queue"
	flagMetricsPort      = "metrics-port"
	flagLogLevel         = "log-level"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "serve [auth|device|device-auth|buffer|connection-scheme|message|all]",
		Short:     "Run one mesh domain, or all of them on the channel transport",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"auth", "device", "device-auth", "buffer", "connection-scheme", "message", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd)
			logger.Info("Starting", logging.Fields{"version": version, "config": conf.String()})

			ctx := context.Background()
			node, err := bus.NewNode(ctx, conf, logger, bus.Options{})
			if err != nil {
				return err
			}

			if args[0] == "all" {
				err = wireAll(node, conf, logger)
			} else {
				err = wireDomain(node, conf, logger, args[0])
			}
			if err != nil {
				return err
			}

			return node.Run(ctx)
		},
	}

	cmd.Flags().String(flagTransport, "channel", "bus transport: channel, kafka, nats, or rabbitmq")
	cmd.Flags().StringSlice(flagKafkaBrokers, nil, "kafka broker addresses")
	cmd.Flags().String(flagKafkaGroup, "", "kafka consumer group (defaults to the service name)")
	cmd.Flags().String(flagNATSURL, "", "NATS server URL")
	cmd.Flags().String(flagRabbitMQURL, "", "RabbitMQ URL")
	cmd.Flags().Duration(flagRPCTimeout, config.DefaultRPCTimeout, "deadline for cross-domain calls")
	cmd.Flags().Bool(flagSharedReplyTopic, false, "use the shared per-domain reply topic instead of a per-instance one")
	cmd.Flags().String(flagPoisonQueue, "", "topic receiving messages that exhaust their retries")
	cmd.Flags().Int(flagMetricsPort, 0, "port for the Prometheus /metrics endpoint (0 disables metrics)")
	cmd.Flags().String(flagLogLevel, "info", "log level: debug, info, warn, or error")

	return cmd
}

func configFromFlags(cmd *cobra.Command, domainArg string) (*config.Config, error) {
	serviceName := domainArg + "-service"
	if domainArg == "all" {
		serviceName = "connmesh-all"
	}

	transportName, _ := cmd.Flags().GetString(flagTransport)
	if domainArg == "all" && transportName != "channel" {
		return nil, fmt.Errorf("serve all runs every domain in one process and requires the channel transport, got %q", transportName)
	}
	if !slices.Contains(transport.DefaultRegistry.Names(), transportName) {
		return nil, fmt.Errorf("unknown transport %q (registered: %v)", transportName, transport.DefaultRegistry.Names())
	}

	brokers, _ := cmd.Flags().GetStringSlice(flagKafkaBrokers)
	group, _ := cmd.Flags().GetString(flagKafkaGroup)
	if group == "" {
		group = serviceName
	}
	natsURL, _ := cmd.Flags().GetString(flagNATSURL)
	rabbitURL, _ := cmd.Flags().GetString(flagRabbitMQURL)
	rpcTimeout, _ := cmd.Flags().GetDuration(flagRPCTimeout)
	sharedReply, _ := cmd.Flags().GetBool(flagSharedReplyTopic)
	poison, _ := cmd.Flags().GetString(flagPoisonQueue)
	metricsPort, _ := cmd.Flags().GetInt(flagMetricsPort)

	return &config.Config{
		ServiceName:        serviceName,
		PubSubSystem:       transportName,
		KafkaBrokers:       brokers,
		KafkaConsumerGroup: group,
		NATSURL:            natsURL,
		RabbitMQURL:        rabbitURL,
		RPCTimeout:         rpcTimeout,
		SharedReplyTopic:   sharedReply,
		PoisonQueue:        poison,
		MetricsEnabled:     metricsPort > 0,
		MetricsPort:        metricsPort,
	}, nil
}

func newLogger(cmd *cobra.Command) logging.ServiceLogger {
	levelName, _ := cmd.Flags().GetString(flagLogLevel)
	level := slog.LevelInfo
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return logging.NewSlogLogger(slog.New(handler))
}
