package trainer

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n NetEncoder
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNetEncoder)
}

// A NetEncoder is an Encoder that applies an anynet.Net
// to every timestep of the input sequence.
type NetEncoder struct {
	Net anynet.Net
}

// DeserializeNetEncoder deserializes a NetEncoder.
func DeserializeNetEncoder(d []byte) (*NetEncoder, error) {
	var net anynet.Net
	if err := serializer.DeserializeAny(d, &net); err != nil {
		return nil, essentials.AddCtx("deserialize NetEncoder", err)
	}
	return &NetEncoder{Net: net}, nil
}

// Apply applies the network per timestep.
func (n *NetEncoder) Apply(in anyseq.Seq) anyseq.Seq {
	return anyseq.Map(in, n.Net.Apply)
}

// Parameters returns the network's parameters.
func (n *NetEncoder) Parameters() []*anydiff.Var {
	return n.Net.Parameters()
}

// SetTraining toggles any dropout layers.
func (n *NetEncoder) SetTraining(training bool) {
	for _, layer := range n.Net {
		if d, ok := layer.(*anynet.Dropout); ok {
			d.Enabled = training
		}
	}
}

// SerializerType returns the unique ID used to serialize
// a NetEncoder.
func (n *NetEncoder) SerializerType() string {
	return "github.com/unixpickle/priormatch/trainer.NetEncoder"
}

// Serialize serializes the NetEncoder.
func (n *NetEncoder) Serialize() ([]byte, error) {
	return serializer.SerializeAny(n.Net)
}
