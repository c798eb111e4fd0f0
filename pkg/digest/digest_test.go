// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signer.
//
// go-signer is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package digest_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/token"
	"github.com/jeremyhahn/go-signer/pkg/token/mocks"
)

var message = bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog. "), 37)

// softwareAlgorithms are the digests with an in-process implementation.
var softwareAlgorithms = []*algorithm.DigestAlgorithm{
	algorithm.GOSTR341194,
	algorithm.GOSTR34112012256,
	algorithm.GOSTR34112012512,
	algorithm.SHA1,
	algorithm.SHA224,
	algorithm.SHA256,
	algorithm.SHA384,
	algorithm.SHA512,
	algorithm.MD5,
	algorithm.RIPEMD160,
}

type engineFactory func(t *testing.T, alg *algorithm.DigestAlgorithm) digest.Engine

func softwareFactory(t *testing.T, alg *algorithm.DigestAlgorithm) digest.Engine {
	e, err := digest.NewSoftware(alg)
	require.NoError(t, err)
	return e
}

func hardwareFactory(t *testing.T, alg *algorithm.DigestAlgorithm) digest.Engine {
	s, err := token.Open(mocks.New("1234"), nil, "1234")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	e, err := digest.NewHardware(s, alg)
	require.NoError(t, err)
	return e
}

func writeChunks(t *testing.T, e digest.Engine, data []byte, size int) []byte {
	t.Helper()
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		written, err := e.Write(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, written)
		data = data[n:]
	}
	sum, err := e.Sum()
	require.NoError(t, err)
	return sum
}

func TestEngines(t *testing.T) {
	factories := map[string]engineFactory{
		"software": softwareFactory,
		"hardware": hardwareFactory,
	}

	for name, factory := range factories {
		for _, alg := range softwareAlgorithms {
			t.Run(name+"/"+alg.Name, func(t *testing.T) {
				want, err := digest.Sum(alg, message)
				require.NoError(t, err)
				require.Len(t, want, alg.Size)

				e := factory(t, alg)
				assert.Equal(t, alg, e.Algorithm())
				assert.Equal(t, alg.Size, e.Size())

				for _, chunk := range []int{1, 7, 64, 1000, len(message)} {
					require.NoError(t, e.Reset())
					assert.Equal(t, want, writeChunks(t, e, message, chunk), "chunk size %d", chunk)
				}

				// finalized until reset
				_, err = e.Sum()
				assert.ErrorIs(t, err, digest.ErrFinalized)
				_, err = e.Write([]byte("more"))
				assert.ErrorIs(t, err, digest.ErrFinalized)

				require.NoError(t, e.Reset())
				empty, err := digest.Sum(alg, nil)
				require.NoError(t, err)
				sum, err := e.Sum()
				require.NoError(t, err)
				assert.Equal(t, empty, sum)
			})
		}
	}
}

func TestSoftware_KnownAnswer(t *testing.T) {
	e, err := digest.NewSoftware(algorithm.SHA256)
	require.NoError(t, err)
	sum, err := e.Sum()
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(sum))

	require.NoError(t, e.Reset())
	_, err = e.Write([]byte("hello"))
	require.NoError(t, err)
	sum, err = e.Sum()
	require.NoError(t, err)
	want := sha256.Sum256([]byte("hello"))
	assert.Equal(t, want[:], sum)
}

func TestNewSoftware_Unsupported(t *testing.T) {
	for _, alg := range []*algorithm.DigestAlgorithm{algorithm.RIPEMD128, algorithm.RIPEMD256} {
		_, err := digest.NewSoftware(alg)
		assert.ErrorIs(t, err, digest.ErrNoSoftwareHash, alg.Name)
	}
}

func TestNewHardware_NoMechanism(t *testing.T) {
	_, err := digest.NewHardware(nil, algorithm.RIPEMD256)
	assert.ErrorIs(t, err, algorithm.ErrNoMechanism)
}

func TestHardware_HoldsSession(t *testing.T) {
	s, err := token.Open(mocks.New("1234"), nil, "1234")
	require.NoError(t, err)
	defer s.Close()

	first, err := digest.NewHardware(s, algorithm.GOSTR34112012256)
	require.NoError(t, err)
	second, err := digest.NewHardware(s, algorithm.GOSTR34112012256)
	require.NoError(t, err)

	_, err = first.Write([]byte("data"))
	require.NoError(t, err)

	_, err = second.Write([]byte("data"))
	assert.ErrorIs(t, err, token.ErrOperationActive)

	// reset discards the open operation and frees the session
	require.NoError(t, first.Reset())
	_, err = second.Write([]byte("data"))
	require.NoError(t, err)
	_, err = second.Sum()
	require.NoError(t, err)
}

func TestHardware_UpdateFailure(t *testing.T) {
	m := mocks.New("1234")
	s, err := token.Open(m, nil, "1234")
	require.NoError(t, err)
	defer s.Close()

	e, err := digest.NewHardware(s, algorithm.SHA256)
	require.NoError(t, err)
	_, err = e.Write([]byte("a"))
	require.NoError(t, err)

	m.Fail["DigestUpdate"] = assert.AnError
	_, err = e.Write([]byte("b"))
	assert.ErrorIs(t, err, assert.AnError)
	_, err = e.Sum()
	assert.ErrorIs(t, err, digest.ErrFinalized)

	delete(m.Fail, "DigestUpdate")
	require.NoError(t, e.Reset())
	_, err = e.Write([]byte("ab"))
	require.NoError(t, err)
	sum, err := e.Sum()
	require.NoError(t, err)
	want := sha256.Sum256([]byte("ab"))
	assert.Equal(t, want[:], sum)
}
