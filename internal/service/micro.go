package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/synadia-labs/workload-probe/internal/config"
)

const (
	Name   = "ProbeAgent"
	Prefix = "PROBE"
)

// ConnectNATS dials the configured servers, authenticating with the user JWT
// and nkey seed when both are set.
func ConnectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name(Name)}

	jwt, err := cfg.Jwt()
	if err != nil {
		return nil, err
	}
	if jwt != "" {
		opts = append(opts, nats.UserJWTAndSeed(jwt, cfg.Nkey))
	}

	nc, err := nats.Connect(cfg.Url, opts...)
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %s", err)
	}
	return nc, nil
}

// StartNATSMicro registers the probe endpoints under PROBE.*. The caller
// stops the returned service.
func StartNATSMicro(nc *nats.Conn, probe Probe, version string, log *slog.Logger) (micro.Service, error) {
	svc, err := micro.AddService(nc, micro.Config{
		Name:        Name,
		Description: "NATS micro service to run commands and read or write files on a workload host.",
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating nats micro service: %s", err)
	}

	endpoints := []struct {
		name    string
		request string
		fn      func(r micro.Request, probe Probe) (any, error)
	}{
		{name: "HEALTH", request: "", fn: health},
		{name: "EXEC", request: `{"command": "string"}`, fn: runCommand},
		{name: "READ", request: `{"path": "string"}`, fn: readFile},
		{name: "WRITE", request: `{"path": "string", "content": "string"}`, fn: writeFile},
	}

	for _, ep := range endpoints {
		err = svc.AddEndpoint(
			ep.name,
			microLogHandler(probe, log, ep.fn),
			micro.WithEndpointSubject(fmt.Sprintf("%s.%s", Prefix, ep.name)),
			micro.WithEndpointMetadata(map[string]string{
				"request": ep.request,
			}),
		)
		if err != nil {
			svc.Stop()
			return nil, fmt.Errorf("error adding %s endpoint: %s", ep.name, err)
		}
	}

	log.Info("nats micro service started", slog.String("name", Name), slog.String("prefix", Prefix))
	return svc, nil
}

// microLogHandler logs the request and sends the reply: raw bytes as is,
// anything else as JSON, and an error as a micro error carrying the matching
// HTTP status as its code.
func microLogHandler(probe Probe, log *slog.Logger, fn func(r micro.Request, probe Probe) (any, error)) micro.Handler {
	return micro.HandlerFunc(func(r micro.Request) {
		log.Debug("received request", slog.String("subject", r.Subject()))

		response, err := fn(r, probe)
		if err != nil {
			kind := KindOf(err)
			log.Warn("request failed",
				slog.String("subject", r.Subject()),
				slog.String("kind", string(kind)),
				slog.Any("err", err))
			err = r.Error(strconv.Itoa(kind.HTTPStatus()), err.Error(), nil)
		} else if raw, ok := response.([]byte); ok {
			err = r.Respond(raw)
		} else {
			err = r.RespondJSON(response)
		}

		if err != nil {
			log.Error("response error", slog.String("subject", r.Subject()), slog.Any("err", err))
		}
	})
}

func health(r micro.Request, probe Probe) (any, error) {
	return []byte(probe.Health()), nil
}

func runCommand(r micro.Request, probe Probe) (any, error) {
	var req RunCommandRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, err
	}
	return probe.RunCommand(context.Background(), req.Command)
}

func readFile(r micro.Request, probe Probe) (any, error) {
	var req ReadFileRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, newError(KindValidation, "missing path parameter")
	}
	return probe.ReadFile(req.Path)
}

func writeFile(r micro.Request, probe Probe) (any, error) {
	var req WriteFileRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, newError(KindValidation, "missing path parameter")
	}
	if req.Content == nil {
		return nil, newError(KindValidation, "missing content parameter")
	}
	return probe.WriteFile(req.Path, *req.Content)
}

func decodeRequest(r micro.Request, v any) error {
	if err := json.Unmarshal(r.Data(), v); err != nil {
		return wrapError(KindValidation, err, "invalid request")
	}
	return nil
}
