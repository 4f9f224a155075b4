// Package smartspeech describes the SmartSpeech v1 wire schema and adapts
// its recognition, synthesis and storage streams to the call package.
//
// Messages are dynamic: the file descriptors are assembled at init and
// resolved against the well-known types linked into the binary, so no
// generated code is needed.
package smartspeech

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	// Registers google/protobuf/duration.proto and timestamp.proto.
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
)

const (
	durationType  = ".google.protobuf.Duration"
	timestampType = ".google.protobuf.Timestamp"
)

// Message descriptors, resolved at init.
var (
	recognitionRequestDesc  protoreflect.MessageDescriptor
	recognitionOptionsDesc  protoreflect.MessageDescriptor
	recognitionResponseDesc protoreflect.MessageDescriptor
	synthesisRequestDesc    protoreflect.MessageDescriptor
	synthesisResponseDesc   protoreflect.MessageDescriptor
	downloadRequestDesc     protoreflect.MessageDescriptor
	downloadResponseDesc    protoreflect.MessageDescriptor
	getTaskRequestDesc      protoreflect.MessageDescriptor
	cancelTaskRequestDesc   protoreflect.MessageDescriptor
	taskDesc                protoreflect.MessageDescriptor
)

// gRPC method paths.
var (
	RecognizeMethod  string
	SynthesizeMethod string
	DownloadMethod   string
	GetTaskMethod    string
	CancelTaskMethod string
)

// Service descriptors, resolved at init.
var (
	recognitionService protoreflect.ServiceDescriptor
	synthesisService   protoreflect.ServiceDescriptor
	storageService     protoreflect.ServiceDescriptor
	taskService        protoreflect.ServiceDescriptor
)

func init() {
	recognition := mustFile(recognitionFile())
	recognitionRequestDesc = recognition.Messages().ByName("RecognitionRequest")
	recognitionOptionsDesc = recognition.Messages().ByName("RecognitionOptions")
	recognitionResponseDesc = recognition.Messages().ByName("RecognitionResponse")
	recognitionService = recognition.Services().ByName("SmartSpeech")

	synthesis := mustFile(synthesisFile())
	synthesisRequestDesc = synthesis.Messages().ByName("SynthesisRequest")
	synthesisResponseDesc = synthesis.Messages().ByName("SynthesisResponse")
	synthesisService = synthesis.Services().ByName("SmartSpeech")

	storage := mustFile(storageFile())
	downloadRequestDesc = storage.Messages().ByName("DownloadRequest")
	downloadResponseDesc = storage.Messages().ByName("DownloadResponse")
	storageService = storage.Services().ByName("SmartSpeech")

	task := mustFile(taskFile())
	getTaskRequestDesc = task.Messages().ByName("GetTaskRequest")
	cancelTaskRequestDesc = task.Messages().ByName("CancelTaskRequest")
	taskDesc = task.Messages().ByName("Task")
	taskService = task.Services().ByName("SmartSpeech")

	RecognizeMethod = fullMethod(recognitionService, "Recognize")
	SynthesizeMethod = fullMethod(synthesisService, "Synthesize")
	DownloadMethod = fullMethod(storageService, "Download")
	GetTaskMethod = fullMethod(taskService, "GetTask")
	CancelTaskMethod = fullMethod(taskService, "CancelTask")
}

func mustFile(fd *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	f, err := protodesc.NewFile(fd, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("smartspeech: invalid descriptor %s: %v", fd.GetName(), err))
	}
	return f
}

func newMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

func fullMethod(sd protoreflect.ServiceDescriptor, method string) string {
	return "/" + string(sd.FullName()) + "/" + method
}

func recognitionFile() *descriptorpb.FileDescriptorProto {
	const pkg = ".smartspeech.recognition.v1."
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("smartspeech/recognition/v1/recognition.proto"),
		Package:    proto.String("smartspeech.recognition.v1"),
		Dependency: []string{"google/protobuf/duration.proto"},
		Syntax:     proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("RecognitionRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					oneof(message("options", 1, pkg+"RecognitionOptions"), 0),
					oneof(scalar("audio_chunk", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES), 0),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("request")}},
			},
			{
				Name: proto.String("RecognitionOptions"),
				Field: []*descriptorpb.FieldDescriptorProto{
					enumField("audio_encoding", 1, pkg+"RecognitionOptions.AudioEncoding"),
					scalar("sample_rate", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("model", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("hypotheses_count", 4, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("enable_profanity_filter", 5, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("enable_multi_utterance", 6, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("enable_partial_results", 7, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					message("no_speech_timeout", 8, durationType),
					message("max_speech_timeout", 9, durationType),
					message("hints", 10, pkg+"Hints"),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					enum("AudioEncoding", "AUDIO_ENCODING_UNSPECIFIED", "PCM_S16LE", "OPUS"),
				},
			},
			{
				Name: proto.String("Hints"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(scalar("words", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)),
					scalar("enable_letters", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					message("eou_timeout", 3, durationType),
				},
			},
			{
				Name: proto.String("RecognitionResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(message("results", 1, pkg+"Hypothesis")),
					scalar("eou", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					message("emotions_result", 3, pkg+"Emotions"),
				},
			},
			{
				Name: proto.String("Hypothesis"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("text", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("normalized_text", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					message("start", 3, durationType),
					message("end", 4, durationType),
				},
			},
			{
				Name: proto.String("Emotions"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("positive", 1, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("neutral", 2, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("negative", 3, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service(method("Recognize", pkg+"RecognitionRequest", pkg+"RecognitionResponse", true, true)),
		},
	}
}

func synthesisFile() *descriptorpb.FileDescriptorProto {
	const pkg = ".smartspeech.synthesis.v1."
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("smartspeech/synthesis/v1/synthesis.proto"),
		Package:    proto.String("smartspeech.synthesis.v1"),
		Dependency: []string{"google/protobuf/duration.proto"},
		Syntax:     proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("SynthesisRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("text", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					enumField("audio_encoding", 2, pkg+"SynthesisRequest.AudioEncoding"),
					scalar("language", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					enumField("content_type", 4, pkg+"SynthesisRequest.ContentType"),
					scalar("voice", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					enum("AudioEncoding", "AUDIO_ENCODING_UNSPECIFIED", "PCM_S16LE", "OPUS", "WAV"),
					enum("ContentType", "TEXT", "SSML"),
				},
			},
			{
				Name: proto.String("SynthesisResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("data", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					message("audio_duration", 2, durationType),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service(method("Synthesize", pkg+"SynthesisRequest", pkg+"SynthesisResponse", false, true)),
		},
	}
}

func storageFile() *descriptorpb.FileDescriptorProto {
	const pkg = ".smartspeech.storage.v1."
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("smartspeech/storage/v1/storage.proto"),
		Package: proto.String("smartspeech.storage.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("DownloadRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("response_file_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("DownloadResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("file_chunk", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service(method("Download", pkg+"DownloadRequest", pkg+"DownloadResponse", false, true)),
		},
	}
}

func taskFile() *descriptorpb.FileDescriptorProto {
	const pkg = ".smartspeech.task.v1."
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("smartspeech/task/v1/task.proto"),
		Package:    proto.String("smartspeech.task.v1"),
		Dependency: []string{"google/protobuf/timestamp.proto"},
		Syntax:     proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Task"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					message("created_at", 2, timestampType),
					message("updated_at", 3, timestampType),
					enumField("status", 4, pkg+"Task.Status"),
					scalar("error", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("response_file_id", 6, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					enum("Status", "STATUS_UNSPECIFIED", "NEW", "RUNNING", "CANCELED", "DONE", "ERROR"),
				},
			},
			{
				Name: proto.String("GetTaskRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("task_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("CancelTaskRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("task_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service(
				method("GetTask", pkg+"GetTaskRequest", pkg+"Task", false, false),
				method("CancelTask", pkg+"CancelTaskRequest", pkg+"Task", false, false),
			),
		},
	}
}

// --- descriptor helpers ---

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func message(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(typeName)
	return f
}

func enumField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_ENUM)
	f.TypeName = proto.String(typeName)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func oneof(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

// enum numbers its values in declaration order, starting at zero.
func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

func method(name, input, output string, clientStreaming, serverStreaming bool) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:            proto.String(name),
		InputType:       proto.String(input),
		OutputType:      proto.String(output),
		ClientStreaming: proto.Bool(clientStreaming),
		ServerStreaming: proto.Bool(serverStreaming),
	}
}

func service(methods ...*descriptorpb.MethodDescriptorProto) *descriptorpb.ServiceDescriptorProto {
	return &descriptorpb.ServiceDescriptorProto{
		Name:   proto.String("SmartSpeech"),
		Method: methods,
	}
}
