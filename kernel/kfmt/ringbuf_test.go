package kfmt

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	var (
		buf     bytes.Buffer
		expStr  = "the big brown fox jumped over the lazy dog"
		expData = []byte(expStr)
		rb      ringBuffer
	)

	t.Run("read/write", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 0, 0
		n, err := rb.Write(expData)
		require.NoError(t, err)
		assert.Equal(t, len(expData), n)

		buf.Reset()
		_, err = io.Copy(&buf, &rb)
		require.NoError(t, err)
		assert.Equal(t, expStr, buf.String())
	})

	t.Run("write moves read pointer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-1, 0
		_, err := rb.Write([]byte{'!'})
		require.NoError(t, err)
		assert.Equal(t, 1, rb.rIndex)
	})

	t.Run("wStart <= rStart", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-2, ringBufferSize-2
		n, err := rb.Write(expData)
		require.NoError(t, err)
		assert.Equal(t, len(expData), n)

		buf.Reset()
		_, err = io.Copy(&buf, &rb)
		require.NoError(t, err)
		assert.Equal(t, expStr, buf.String())
	})

	t.Run("overflow keeps newest data", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 0, 0
		payload := bytes.Repeat([]byte{'x'}, ringBufferSize)
		copy(payload[ringBufferSize-3:], "end")
		_, err := rb.Write(payload)
		require.NoError(t, err)

		buf.Reset()
		_, err = io.Copy(&buf, &rb)
		require.NoError(t, err)
		assert.Equal(t, ringBufferSize-1, buf.Len())
		assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("end")))
	})

	t.Run("empty", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 7, 7
		n, err := rb.Read(make([]byte, 4))
		assert.Equal(t, 0, n)
		assert.Equal(t, io.EOF, err)
	})
}
