package framecrit

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var u UnigramLM
	serializer.RegisterTypedDeserializer(u.SerializerType(), DeserializeUnigramLM)
}

// A UnigramLM is a language-model critic that scores
// token sequences under a learned unigram distribution.
//
// It stands in for heavier pretrained critics: the
// trainer only consumes its per-path log-probabilities.
type UnigramLM struct {
	// Table holds one logit per alphabet token.
	Table *anydiff.Var

	// EOS is appended to every scored path.
	EOS int
}

// NewUnigramLM creates a UnigramLM with uniform logits.
func NewUnigramLM(c anyvec.Creator, numTokens, eos int) *UnigramLM {
	return &UnigramLM{
		Table: anydiff.NewVar(c.MakeVector(numTokens)),
		EOS:   eos,
	}
}

// DeserializeUnigramLM deserializes a UnigramLM.
func DeserializeUnigramLM(d []byte) (*UnigramLM, error) {
	var table *anyvecsave.S
	var eos serializer.Int
	if err := serializer.DeserializeAny(d, &table, &eos); err != nil {
		return nil, essentials.AddCtx("deserialize UnigramLM", err)
	}
	return &UnigramLM{Table: anydiff.NewVar(table.Vector), EOS: int(eos)}, nil
}

// Parameters returns the LM's parameters.
//
// The trainer never updates these; they exist so the
// critic can be trained separately and serialized.
func (u *UnigramLM) Parameters() []*anydiff.Var {
	return []*anydiff.Var{u.Table}
}

// LogProb returns one log-probability per path, including
// the terminating EOS.
func (u *UnigramLM) LogProb(paths [][]int) anydiff.Res {
	return anydiff.Pool(u.logTable(), func(logp anydiff.Res) anydiff.Res {
		scores := make([]anydiff.Res, len(paths))
		for i, path := range paths {
			total := anydiff.Slice(logp, u.EOS, u.EOS+1)
			for _, tok := range path {
				total = anydiff.Add(total, anydiff.Slice(logp, tok, tok+1))
			}
			scores[i] = total
		}
		return anydiff.Concat(scores...)
	})
}

func (u *UnigramLM) logTable() anydiff.Res {
	return anydiff.LogSoftmax(u.Table, u.Table.Vector.Len())
}

// SerializerType returns the unique ID used to serialize
// a UnigramLM.
func (u *UnigramLM) SerializerType() string {
	return "github.com/unixpickle/priormatch/framecrit.UnigramLM"
}

// Serialize serializes the UnigramLM.
func (u *UnigramLM) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: u.Table.Vector},
		serializer.Int(u.EOS),
	)
}
