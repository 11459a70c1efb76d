// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package logger_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLILogger(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Printf",
			testFunc: func(t *testing.T) {
				var buf bytes.Buffer
				log := logger.NewCLILogger()
				log.SetOutput(&buf)

				log.Printf("checked %d certificates", 3)

				assert.Equal(t, "checked 3 certificates\n", buf.String())
			},
		},
		{
			name: "Println",
			testFunc: func(t *testing.T) {
				var buf bytes.Buffer
				log := logger.NewCLILogger()
				log.SetOutput(&buf)

				log.Println("issuer", "found")

				assert.Contains(t, buf.String(), "issuer")
				assert.Contains(t, buf.String(), "found")
			},
		},
		{
			name: "Component prefix",
			testFunc: func(t *testing.T) {
				var buf bytes.Buffer
				log := logger.NewCLILogger()
				log.SetOutput(&buf)

				child := logger.WithComponent(log, "revocation")
				child.Printf("no CRL for %s", "CN=Leaf")
				log.Printf("plain")

				lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
				require.Len(t, lines, 2)
				assert.Equal(t, "[revocation] no CRL for CN=Leaf", lines[0])
				assert.Equal(t, "plain", lines[1])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func decodeLines(t *testing.T, data []byte) []map[string]string {
	t.Helper()
	var out []map[string]string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var entry map[string]string
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry), "line %q", sc.Text())
		out = append(out, entry)
	}
	return out
}

func TestMCPLogger(t *testing.T) {
	t.Run("structured output", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewMCPLogger(&buf, false)

		log.Printf("run %s started", "abc")
		log.Println("done")

		entries := decodeLines(t, buf.Bytes())
		require.Len(t, entries, 2)
		assert.Equal(t, "info", entries[0]["level"])
		assert.Equal(t, "run abc started", entries[0]["message"])
		_, hasComponent := entries[0]["component"]
		assert.False(t, hasComponent)
		assert.Equal(t, "done", entries[1]["message"])
	})

	t.Run("silent mode", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewMCPLogger(&buf, true)
		log.Printf("hidden")
		log.Println("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("nil writer", func(t *testing.T) {
		log := logger.NewMCPLogger(nil, false)
		assert.NotPanics(t, func() { log.Printf("discarded") })
	})

	t.Run("component shares output", func(t *testing.T) {
		var first, second bytes.Buffer
		log := logger.NewMCPLogger(&first, false)
		child := logger.WithComponent(log, "fetch")

		child.Printf("GET %s", "http://crl.example/ca.crl")
		log.SetOutput(&second)
		child.Printf("after switch")

		entries := decodeLines(t, first.Bytes())
		require.Len(t, entries, 1)
		assert.Equal(t, "fetch", entries[0]["component"])

		entries = decodeLines(t, second.Bytes())
		require.Len(t, entries, 1)
		assert.Equal(t, "after switch", entries[0]["message"])
	})

	t.Run("concurrent writes", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewMCPLogger(&buf, false)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				log.Printf("entry %d", n)
			}(i)
		}
		wg.Wait()

		assert.Len(t, decodeLines(t, buf.Bytes()), 50)
	})
}

func TestNop(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Printf("x %d", 1)
		log.Println("y")
		log.SetOutput(nil)
	})
	assert.Equal(t, log, logger.WithComponent(log, "validation"))
	assert.NotNil(t, logger.WithComponent(nil, "validation"))
}
