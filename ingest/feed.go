// Package ingest subscribes to a world simulation's perception stream
// and forwards each event to the actor it names. World services expose
// their streams over gRPC with server reflection, so the feed needs no
// compiled stubs: it resolves the method descriptor at connect time and
// decodes events as dynamic messages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/beyond-immersion/bannou-service-sub001/runtime"
)

var log = commonlog.GetLogger("bannou.ingest")

const (
	defaultActorField   = "actor_id"
	defaultTypeField    = "type"
	defaultSourceField  = "source"
	defaultUrgencyField = "urgency"

	defaultReconnect    = time.Second
	defaultMaxReconnect = 30 * time.Second
)

// Config describes one perception stream subscription.
type Config struct {
	// Target is the world service address.
	Target string

	// Method is the server-streaming method in "package.Service/Method"
	// form, resolved through server reflection.
	Method string

	// Field names in the event message. ActorField routes the event;
	// the others fill the perception envelope. Every remaining field
	// lands in the payload.
	ActorField   string
	TypeField    string
	SourceField  string
	UrgencyField string

	// Reconnect is the initial delay after a lost stream, doubled up to
	// MaxReconnect while the service stays unreachable.
	Reconnect    time.Duration
	MaxReconnect time.Duration
}

func (c *Config) applyDefaults() {
	if c.ActorField == "" {
		c.ActorField = defaultActorField
	}
	if c.TypeField == "" {
		c.TypeField = defaultTypeField
	}
	if c.SourceField == "" {
		c.SourceField = defaultSourceField
	}
	if c.UrgencyField == "" {
		c.UrgencyField = defaultUrgencyField
	}
	if c.Reconnect <= 0 {
		c.Reconnect = defaultReconnect
	}
	if c.MaxReconnect < c.Reconnect {
		c.MaxReconnect = defaultMaxReconnect
	}
}

func (c *Config) validate() error {
	if c.Target == "" {
		return fmt.Errorf("ingest: no target address")
	}
	if _, _, err := splitMethod(c.Method); err != nil {
		return err
	}
	return nil
}

// splitMethod parses "package.Service/Method" into its two halves.
func splitMethod(full string) (service, method string, err error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ingest: invalid method %q (expected 'service/method')", full)
	}
	return parts[0], parts[1], nil
}

// Feed is one running subscription delivering perceptions into a
// runtime. Construct with NewFeed, drive with Run.
type Feed struct {
	cfg Config
	rt  *runtime.Runtime
}

// NewFeed validates cfg and binds the feed to rt.
func NewFeed(rt *runtime.Runtime, cfg Config) (*Feed, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Feed{cfg: cfg, rt: rt}, nil
}

// Run consumes the stream until ctx ends, reconnecting with doubling
// backoff whenever the stream drops. The backoff resets once a stream
// delivers at least one event.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.cfg.Reconnect
	for {
		delivered, err := f.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			backoff = f.cfg.Reconnect
		}
		log.Warningf("perception stream %s lost, reconnecting in %s: %s",
			f.cfg.Target, backoff, err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.cfg.MaxReconnect {
			backoff = f.cfg.MaxReconnect
		}
	}
}

// consume runs one stream to exhaustion. It reports whether any event
// arrived, so the caller can tell a dead target from a stream that
// worked and then dropped.
func (f *Feed) consume(ctx context.Context) (bool, error) {
	conn, err := grpc.Dial(f.cfg.Target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, fmt.Errorf("ingest: dial %s: %w", f.cfg.Target, err)
	}
	defer conn.Close()

	refClient := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	defer refClient.Reset()

	methodDesc, err := resolveMethod(refClient, f.cfg.Method)
	if err != nil {
		return false, err
	}
	if !methodDesc.IsServerStreaming() || methodDesc.IsClientStreaming() {
		return false, fmt.Errorf("ingest: method %s is not server-streaming", f.cfg.Method)
	}

	streamDesc := &grpc.StreamDesc{
		StreamName:    methodDesc.GetName(),
		ServerStreams: true,
	}
	stream, err := conn.NewStream(ctx, streamDesc, "/"+f.cfg.Method)
	if err != nil {
		return false, fmt.Errorf("ingest: open stream: %w", err)
	}
	if err := stream.SendMsg(dynamic.NewMessage(methodDesc.GetInputType())); err != nil {
		return false, fmt.Errorf("ingest: send subscribe request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return false, fmt.Errorf("ingest: close send: %w", err)
	}

	log.Infof("subscribed to %s at %s", f.cfg.Method, f.cfg.Target)

	delivered := false
	for {
		msg := dynamic.NewMessage(methodDesc.GetOutputType())
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, fmt.Errorf("ingest: stream ended")
			}
			return delivered, fmt.Errorf("ingest: receive: %w", err)
		}
		delivered = true
		f.deliver(msg)
	}
}

// resolveMethod turns "package.Service/Method" into its descriptor via
// the target's reflection service.
func resolveMethod(refClient *grpcreflect.Client, fullMethod string) (*desc.MethodDescriptor, error) {
	serviceName, methodName, err := splitMethod(fullMethod)
	if err != nil {
		return nil, err
	}

	svcDesc, err := refClient.ResolveService(serviceName)
	if err != nil {
		return nil, fmt.Errorf("ingest: cannot resolve service %s: %w", serviceName, err)
	}
	methodDesc := svcDesc.FindMethodByName(methodName)
	if methodDesc == nil {
		return nil, fmt.Errorf("ingest: method %s not found in service %s", methodName, serviceName)
	}
	return methodDesc, nil
}

// deliver converts one event message and hands it to the runtime. An
// event without an actor id, or for an actor that is gone, is dropped
// at debug level: the world keeps publishing while actors come and go.
func (f *Feed) deliver(msg *dynamic.Message) {
	actorID, p := f.perceptionFromMessage(msg)
	if actorID == "" {
		log.Debugf("event without %s field dropped", f.cfg.ActorField)
		return
	}
	if err := f.rt.Send(actorID, p); err != nil {
		log.Debugf("perception for %q dropped: %s", actorID, err.Error())
	}
}

// perceptionFromMessage maps the envelope fields by name and collects
// everything else into the payload.
func (f *Feed) perceptionFromMessage(msg *dynamic.Message) (string, runtime.Perception) {
	var actorID string
	p := runtime.Perception{Payload: make(map[string]interface{})}

	for _, field := range msg.GetKnownFields() {
		if !msg.HasField(field) {
			continue
		}
		value := fieldValue(msg.GetField(field), field)

		switch field.GetName() {
		case f.cfg.ActorField:
			actorID, _ = value.(string)
		case f.cfg.TypeField:
			p.Type, _ = value.(string)
		case f.cfg.SourceField:
			p.Source, _ = value.(string)
		case f.cfg.UrgencyField:
			p.Urgency, _ = value.(string)
		default:
			p.Payload[field.GetName()] = value
		}
	}
	return actorID, p
}

// fieldValue converts a decoded protobuf field into the plain Go shape
// scopes hold: numbers widen to float64, enums become their names,
// nested messages become maps.
func fieldValue(val interface{}, field *desc.FieldDescriptor) interface{} {
	if field.IsMap() {
		out := make(map[string]interface{})
		if m, ok := val.(map[interface{}]interface{}); ok {
			for k, v := range m {
				out[fmt.Sprintf("%v", k)] = scalarValue(v, field.GetMapValueType())
			}
		}
		return out
	}
	if field.IsRepeated() {
		items, ok := val.([]interface{})
		if !ok {
			return []interface{}{}
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = scalarValue(item, field)
		}
		return out
	}
	return scalarValue(val, field)
}

func scalarValue(val interface{}, field *desc.FieldDescriptor) interface{} {
	switch field.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32,
		descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return float64(val.(int32))
	case descriptorpb.FieldDescriptorProto_TYPE_INT64,
		descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return float64(val.(int64))
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return float64(val.(uint32))
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return float64(val.(uint64))
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return float64(val.(float32))
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return val.(float64)
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return val.(bool)
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return val.(string)
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		if n, ok := val.(int32); ok {
			if ev := field.GetEnumType().FindValueByNumber(n); ev != nil {
				return ev.GetName()
			}
			return float64(n)
		}
		return val
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		if nested, ok := val.(*dynamic.Message); ok {
			out := make(map[string]interface{}, len(nested.GetKnownFields()))
			for _, nf := range nested.GetKnownFields() {
				if nested.HasField(nf) {
					out[nf.GetName()] = fieldValue(nested.GetField(nf), nf)
				}
			}
			return out
		}
		return nil
	}
	return nil
}
