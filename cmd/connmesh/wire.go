package main

import (
	"fmt"

	"github.com/connmesh/connmesh/internal/auth"
	"github.com/connmesh/connmesh/internal/buffer"
	"github.com/connmesh/connmesh/internal/bus"
	"github.com/connmesh/connmesh/internal/clients"
	"github.com/connmesh/connmesh/internal/device"
	"github.com/connmesh/connmesh/internal/deviceauth"
	"github.com/connmesh/connmesh/internal/message"
	"github.com/connmesh/connmesh/internal/platform/config"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
	"github.com/connmesh/connmesh/internal/scheme"
)

func clientOpts(conf *config.Config) []rpc.ClientOption {
	opts := []rpc.ClientOption{rpc.WithTimeout(conf.CallTimeout())}
	if conf.SharedReplyTopic {
		opts = append(opts, rpc.WithSharedReplyTopic())
	}
	return opts
}

func addReplies(n *bus.Node, name string, c *rpc.Client) error {
	return n.AddHandler(name, c.ReplyTopic(), c.HandleReply)
}

func addDispatcher(n *bus.Node, d *rpc.Dispatcher) error {
	name := string(d.Domain()) + "-commands"
	return n.AddHandler(name, d.Domain().CommandTopic(), d.Dispatch)
}

func wireDomain(n *bus.Node, conf *config.Config, logger logging.ServiceLogger, domainArg string) error {
	switch domainArg {
	case "auth":
		return wireAuth(n, logger)
	case "device-auth":
		return wireDeviceAuth(n, logger)
	case "device":
		return wireDevice(n, logger)
	case "buffer":
		_, err := wireBuffer(n, conf, logger, nil)
		return err
	case "connection-scheme":
		_, err := wireScheme(n, conf, logger)
		return err
	case "message":
		_, err := wireMessage(n, conf, logger)
		return err
	default:
		return fmt.Errorf("unknown domain %q", domainArg)
	}
}

// wireAll runs every domain on one node. Only meaningful with the channel
// transport, where all dispatchers and reply handlers share one in-process
// pub/sub. Buffer deletion cascades into the message store directly here.
func wireAll(n *bus.Node, conf *config.Config, logger logging.ServiceLogger) error {
	if err := wireAuth(n, logger); err != nil {
		return err
	}
	if err := wireDeviceAuth(n, logger); err != nil {
		return err
	}
	if err := wireDevice(n, logger); err != nil {
		return err
	}
	router, err := wireMessage(n, conf, logger)
	if err != nil {
		return err
	}
	schemeSvc, err := wireScheme(n, conf, logger)
	if err != nil {
		return err
	}
	bufSvc, err := wireBuffer(n, conf, logger, router)
	if err != nil {
		return err
	}
	bufSvc.SetSchemePruner(schemeSvc)
	return nil
}

func wireAuth(n *bus.Node, logger logging.ServiceLogger) error {
	svc := auth.NewService(auth.NewMemoryTokenStore(), logger)
	disp := rpc.NewDispatcher(rpc.DomainAuth, auth.ServiceName, n.Publisher(), logger)
	svc.RegisterHandlers(disp)
	return addDispatcher(n, disp)
}

func wireDeviceAuth(n *bus.Node, logger logging.ServiceLogger) error {
	svc := deviceauth.NewService(auth.NewMemoryTokenStore(), logger)
	disp := rpc.NewDispatcher(rpc.DomainDeviceAuth, deviceauth.ServiceName, n.Publisher(), logger)
	svc.RegisterHandlers(disp)
	return addDispatcher(n, disp)
}

func wireDevice(n *bus.Node, logger logging.ServiceLogger) error {
	svc := device.NewService(device.NewMemoryStore(), logger)
	disp := rpc.NewDispatcher(rpc.DomainDevice, device.ServiceName, n.Publisher(), logger)
	svc.RegisterHandlers(disp)
	return addDispatcher(n, disp)
}

func wireBuffer(n *bus.Node, conf *config.Config, logger logging.ServiceLogger, purger buffer.MessagePurger) (*buffer.Service, error) {
	opts := clientOpts(conf)
	devices := clients.NewDevice(buffer.ServiceName, n.Publisher(), logger, opts...)
	schemes := clients.NewScheme(buffer.ServiceName, n.Publisher(), logger, opts...)

	svc := buffer.NewService(buffer.NewMemoryStore(), devices, schemes, purger, logger)
	disp := rpc.NewDispatcher(rpc.DomainBuffer, buffer.ServiceName, n.Publisher(), logger)
	svc.RegisterHandlers(disp)

	if err := addDispatcher(n, disp); err != nil {
		return nil, err
	}
	if err := addReplies(n, "buffer-device-replies", devices.RPC()); err != nil {
		return nil, err
	}
	if err := addReplies(n, "buffer-scheme-replies", schemes.RPC()); err != nil {
		return nil, err
	}
	return svc, nil
}

func wireScheme(n *bus.Node, conf *config.Config, logger logging.ServiceLogger) (*scheme.Service, error) {
	opts := clientOpts(conf)
	devices := clients.NewDevice(scheme.ServiceName, n.Publisher(), logger, opts...)
	buffers := clients.NewBuffer(scheme.ServiceName, n.Publisher(), logger, opts...)

	svc := scheme.NewService(scheme.NewMemoryStore(), devices, buffers, logger)
	disp := rpc.NewDispatcher(rpc.DomainScheme, scheme.ServiceName, n.Publisher(), logger)
	svc.RegisterHandlers(disp)

	if err := addDispatcher(n, disp); err != nil {
		return nil, err
	}
	if err := addReplies(n, "scheme-device-replies", devices.RPC()); err != nil {
		return nil, err
	}
	if err := addReplies(n, "scheme-buffer-replies", buffers.RPC()); err != nil {
		return nil, err
	}
	return svc, nil
}

func wireMessage(n *bus.Node, conf *config.Config, logger logging.ServiceLogger) (*message.Router, error) {
	opts := clientOpts(conf)
	authClient := clients.NewAuth(message.ServiceName, n.Publisher(), logger, opts...)
	deviceAuth := clients.NewDeviceAuth(message.ServiceName, n.Publisher(), logger, opts...)
	devices := clients.NewDevice(message.ServiceName, n.Publisher(), logger, opts...)
	buffers := clients.NewBuffer(message.ServiceName, n.Publisher(), logger, opts...)
	schemes := clients.NewScheme(message.ServiceName, n.Publisher(), logger, opts...)

	router := message.NewRouter(message.NewMemoryStore(), authClient, deviceAuth, devices, buffers, schemes, logger)

	disp := rpc.NewDispatcher(rpc.DomainMessage, message.ServiceName, n.Publisher(), logger)
	router.RegisterHandlers(disp)
	if err := addDispatcher(n, disp); err != nil {
		return nil, err
	}

	for _, r := range []struct {
		name   string
		client *rpc.Client
	}{
		{"message-auth-replies", authClient.RPC()},
		{"message-device-auth-replies", deviceAuth.RPC()},
		{"message-device-replies", devices.RPC()},
		{"message-buffer-replies", buffers.RPC()},
		{"message-scheme-replies", schemes.RPC()},
	} {
		if err := addReplies(n, r.name, r.client); err != nil {
			return nil, err
		}
	}
	return router, nil
}
