package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
)

func createTestClient(t *testing.T, baseURL string) *Client {
	return NewClient(config.LLMConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "test-model",
		Timeout:     5000,
		MaxRetries:  3,
		BackoffBase: 1,
		BackoffCap:  5,
	}, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

func gatewayReply(text string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"output":     map[string]string{"text": text},
		"request_id": "req-1",
	})
	return raw
}

func TestAnalyzeQuestion_Success(t *testing.T) {
	payload := `{"analyse_semantique":{"intention":{"action":"CONSULTATION","objectif":"lister"},` +
		`"temporalite":{"periode":{"type":"FIXE"}},"entites":{"principale":{"nom":"chantiers"}}},` +
		`"structure_requete":{"tables":[{"nom":"chantiers","alias":"c","type":"PRINCIPALE","colonnes":["*"]}]}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/analyze", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(gatewayReply(payload))
	}))
	defer srv.Close()

	analysis, err := createTestClient(t, srv.URL).AnalyzeQuestion(context.Background(), "Combien de chantiers?", "analyse_complete")
	require.NoError(t, err)
	assert.Equal(t, "CONSULTATION", analysis.Analyse.Intention.Action)
	assert.Equal(t, "chantiers", analysis.Analyse.Entites.Principale.Nom)
	require.Len(t, analysis.Structure.Tables, 1)
}

func TestAnalyzeQuestion_MarkdownFencedOutput(t *testing.T) {
	fenced := "```json\n{\"analyse_semantique\":{\"intention\":{\"action\":\"A\",\"objectif\":\"B\"}},\"structure_requete\":{\"tables\":[]}}\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(gatewayReply(fenced))
	}))
	defer srv.Close()

	analysis, err := createTestClient(t, srv.URL).AnalyzeQuestion(context.Background(), "q", "t")
	require.NoError(t, err)
	assert.Equal(t, "A", analysis.Analyse.Intention.Action)
}

func TestAnalyzeQuestion_ParseFailureIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(gatewayReply("désolé, je ne peux pas répondre en JSON"))
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv.URL).AnalyzeQuestion(context.Background(), "q", "t")
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeLLMParseFailed, stderrors.CodeOf(err))
}

func TestSendMessage_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(gatewayReply("Bonjour!"))
	}))
	defer srv.Close()

	answer, err := createTestClient(t, srv.URL).SendMessage(context.Background(), "salut", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour!", answer)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendMessage_TransportFailureAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv.URL).SendMessage(context.Background(), "salut", Options{})
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeLLMTransportFailed, stderrors.CodeOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendJSON_WrapsUnparsableTextAsRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(gatewayReply("pas de JSON ici"))
	}))
	defer srv.Close()

	out, err := createTestClient(t, srv.URL).SendJSON(context.Background(), "critique", Options{})
	require.NoError(t, err)
	assert.Equal(t, "pas de JSON ici", out["raw"])
}

func TestSendJSON_ParsesObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(gatewayReply(`{"newAgent":"rag","confidence":0.9}`))
	}))
	defer srv.Close()

	out, err := createTestClient(t, srv.URL).SendJSON(context.Background(), "critique", Options{})
	require.NoError(t, err)
	assert.Equal(t, "rag", out["newAgent"])
	assert.Equal(t, 0.9, out["confidence"])
}

func TestSendMessage_SystemPreambleIsSent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(gatewayReply("ok"))
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv.URL).SendMessage(context.Background(), "question", Options{
		System: "Tu es un assistant.",
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Tu es un assistant.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}
