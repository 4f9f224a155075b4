package smartspeech

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ErrUnexpectedMessage is returned when a message of the wrong type is
// handed to a decoder.
var ErrUnexpectedMessage = errors.New("unexpected message type")

// NewInput allocates the request message of a method path such as
// RecognizeMethod. It returns nil for unknown methods.
func NewInput(path string) proto.Message {
	if md := methodByPath(path); md != nil {
		return newMessage(md.Input())
	}
	return nil
}

// NewOutput allocates the response message of a method path.
func NewOutput(path string) proto.Message {
	if md := methodByPath(path); md != nil {
		return newMessage(md.Output())
	}
	return nil
}

func methodByPath(path string) protoreflect.MethodDescriptor {
	for _, sd := range []protoreflect.ServiceDescriptor{recognitionService, synthesisService, storageService, taskService} {
		methods := sd.Methods()
		for i := 0; i < methods.Len(); i++ {
			if path == fullMethod(sd, string(methods.Get(i).Name())) {
				return methods.Get(i)
			}
		}
	}
	return nil
}

// reflectAs checks that v is a message of type md.
func reflectAs(v any, md protoreflect.MessageDescriptor) (protoreflect.Message, error) {
	pm, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedMessage, v)
	}
	m := pm.ProtoReflect()
	if m.Descriptor().FullName() != md.FullName() {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, m.Descriptor().FullName(), md.FullName())
	}
	return m, nil
}

func fieldOf(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("smartspeech: %s has no field %s", m.Descriptor().FullName(), name))
	}
	return fd
}

func set(m protoreflect.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(fieldOf(m, name), v)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(fieldOf(m, name))
}

func has(m protoreflect.Message, name protoreflect.Name) bool {
	return m.Has(fieldOf(m, name))
}

func setDuration(m protoreflect.Message, name protoreflect.Name, d time.Duration) {
	pb := durationpb.New(d)
	dm := m.Mutable(fieldOf(m, name)).Message()
	set(dm, "seconds", protoreflect.ValueOfInt64(pb.GetSeconds()))
	set(dm, "nanos", protoreflect.ValueOfInt32(pb.GetNanos()))
}

func getDuration(m protoreflect.Message, name protoreflect.Name) time.Duration {
	if !has(m, name) {
		return 0
	}
	dm := get(m, name).Message()
	pb := &durationpb.Duration{
		Seconds: get(dm, "seconds").Int(),
		Nanos:   int32(get(dm, "nanos").Int()),
	}
	return pb.AsDuration()
}

func setTimestamp(m protoreflect.Message, name protoreflect.Name, t time.Time) {
	pb := timestamppb.New(t)
	tm := m.Mutable(fieldOf(m, name)).Message()
	set(tm, "seconds", protoreflect.ValueOfInt64(pb.GetSeconds()))
	set(tm, "nanos", protoreflect.ValueOfInt32(pb.GetNanos()))
}

func getTimestamp(m protoreflect.Message, name protoreflect.Name) time.Time {
	if !has(m, name) {
		return time.Time{}
	}
	tm := get(m, name).Message()
	pb := &timestamppb.Timestamp{
		Seconds: get(tm, "seconds").Int(),
		Nanos:   int32(get(tm, "nanos").Int()),
	}
	return pb.AsTime()
}
