package channels

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

func discordTestKeys(t *testing.T) (pub ed25519.PublicKey, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func signBody(priv ed25519.PrivateKey, timestamp string, body []byte) string {
	msg := append([]byte(timestamp), body...)
	return hex.EncodeToString(ed25519.Sign(priv, msg))
}

func TestDiscord_PingHandshake(t *testing.T) {
	pub, priv := discordTestKeys(t)
	d := NewDiscord(DiscordConfig{PublicKey: hex.EncodeToString(pub)})
	server := httptest.NewServer(http.HandlerFunc(d.handleInteraction))
	defer server.Close()

	body, _ := json.Marshal(map[string]any{"type": 1})
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := signBody(priv, ts, body)

	req, _ := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", sig)
	req.Header.Set("X-Signature-Timestamp", ts)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out discordgo.InteractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, discordgo.InteractionResponsePong, out.Type)
}

func TestDiscord_RejectsBadSignature(t *testing.T) {
	pub, _ := discordTestKeys(t)
	d := NewDiscord(DiscordConfig{PublicKey: hex.EncodeToString(pub)})
	server := httptest.NewServer(http.HandlerFunc(d.handleInteraction))
	defer server.Close()

	body, _ := json.Marshal(map[string]any{"type": 1})
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req, _ := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(make([]byte, 64)))
	req.Header.Set("X-Signature-Timestamp", ts)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDiscord_CommandInteractionRoundTrip(t *testing.T) {
	pub, priv := discordTestKeys(t)
	d := NewDiscord(DiscordConfig{PublicKey: hex.EncodeToString(pub)})
	stream, err := d.Start(context.Background())
	require.NoError(t, err)
	defer d.Shutdown(context.Background())

	server := httptest.NewServer(http.HandlerFunc(d.handleInteraction))
	defer server.Close()

	interaction := map[string]any{
		"id":   "interaction-1",
		"type": 2, // InteractionApplicationCommand
		"data": map[string]any{"name": "status"},
		"member": map[string]any{
			"user": map[string]any{"id": "user-1", "username": "panos"},
		},
		"channel_id": "chan-1",
	}
	body, _ := json.Marshal(interaction)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := signBody(priv, ts, body)

	var resp *http.Response
	done := make(chan struct{})
	go func() {
		req, _ := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader(body))
		req.Header.Set("X-Signature-Ed25519", sig)
		req.Header.Set("X-Signature-Timestamp", ts)
		var reqErr error
		resp, reqErr = http.DefaultClient.Do(req)
		require.NoError(t, reqErr)
		close(done)
	}()

	select {
	case msg := <-stream:
		require.Equal(t, "discord", msg.Channel)
		require.Equal(t, "user-1", msg.UserID)
		require.Equal(t, "/status", msg.Content)
		require.NoError(t, d.Respond(context.Background(), msg, models.OutgoingResponse{Content: "all good"}))
	case <-time.After(time.Second):
		t.Fatal("interaction never reached stream")
	}

	<-done
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out discordgo.InteractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "all good", out.Data.Content)
}
