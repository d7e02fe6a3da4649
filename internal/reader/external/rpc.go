package external

import (
	"context"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// Handshake is the magic-cookie handshake every external reader/writer
// plugin binary must present before the host will dispense it, the same
// shape as the teacher's plugin handshake.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TLPLAY_READER_PLUGIN",
	MagicCookieValue: "tlplay",
}

// PluginMap names the single plugin type dispensed by an external reader
// process.
var PluginMap = map[string]goplugin.Plugin{
	"reader": &ReaderPlugin{},
}

// ReaderPlugin is the go-plugin Plugin implementation: it wires a local
// imageio.ReadPlugin into an RPCServer on the plugin side, and constructs
// an RPCClient on the host side. go-plugin's net/rpc transport (rather
// than its gRPC transport) is used here because the gRPC transport
// requires protoc-generated stubs, and protoc is not invokable in this
// build; net/rpc's gob encoding handles the plain-struct args/replies
// below without any code generation step.
type ReaderPlugin struct {
	Impl imageio.ReadPlugin
}

func (p *ReaderPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &RPCServer{impl: p.Impl}, nil
}

func (p *ReaderPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// --- wire types (gob-encodable via net/rpc) ---

type canReadArgs struct{ Extension string }
type canReadReply struct{ OK bool }

type infoArgs struct{ Src mediapath.Source }
type infoReply struct{ Info imageio.IOInfo }

type readVideoArgs struct {
	Src   mediapath.Source
	Time  rationaltime.Time
	Layer int
}
type readVideoReply struct{ Data imageio.VideoData }

type readAudioArgs struct {
	Src          mediapath.Source
	StartSeconds float64
}
type readAudioReply struct{ Data imageio.AudioData }

// RPCServer runs in the plugin subprocess, dispatching net/rpc calls to
// the local ReadPlugin implementation it wraps.
type RPCServer struct {
	impl imageio.ReadPlugin
}

func (s *RPCServer) CanRead(args canReadArgs, reply *canReadReply) error {
	reply.OK = s.impl.CanRead(args.Extension)
	return nil
}

func (s *RPCServer) Info(args infoArgs, reply *infoReply) error {
	info, err := s.impl.Info(context.Background(), args.Src)
	reply.Info = info
	return err
}

func (s *RPCServer) ReadVideo(args readVideoArgs, reply *readVideoReply) error {
	data, err := s.impl.ReadVideo(context.Background(), args.Src, args.Time, args.Layer)
	reply.Data = data
	return err
}

func (s *RPCServer) ReadAudio(args readAudioArgs, reply *readAudioReply) error {
	data, err := s.impl.ReadAudio(context.Background(), args.Src, args.StartSeconds)
	reply.Data = data
	return err
}

func (s *RPCServer) CancelRequests(args struct{}, reply *struct{}) error {
	s.impl.CancelRequests()
	return nil
}

// RPCClient runs in the host process and satisfies imageio.ReadPlugin by
// forwarding every call over the net/rpc connection to the subprocess.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) CanRead(extension string) bool {
	var reply canReadReply
	if err := c.client.Call("Plugin.CanRead", canReadArgs{Extension: extension}, &reply); err != nil {
		return false
	}
	return reply.OK
}

func (c *RPCClient) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	var reply infoReply
	err := c.client.Call("Plugin.Info", infoArgs{Src: src}, &reply)
	return reply.Info, err
}

func (c *RPCClient) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	var reply readVideoReply
	err := c.client.Call("Plugin.ReadVideo", readVideoArgs{Src: src, Time: t, Layer: layer}, &reply)
	return reply.Data, err
}

func (c *RPCClient) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	var reply readAudioReply
	err := c.client.Call("Plugin.ReadAudio", readAudioArgs{Src: src, StartSeconds: startSeconds}, &reply)
	return reply.Data, err
}

func (c *RPCClient) CancelRequests() {
	_ = c.client.Call("Plugin.CancelRequests", struct{}{}, &struct{}{})
}
