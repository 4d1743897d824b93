package inference

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-clone-service/internal/core"
)

type chatTemplateRequest struct {
	Messages             []core.ChatMessage `json:"messages"`
	ContinueFinalMessage bool               `json:"continue_final_message"`
}

type inputIDsResponse struct {
	InputIDs []int `json:"input_ids"`
}

type tokenIDRequest struct {
	Token string `json:"token"`
}

type tokenIDResponse struct {
	ID *int `json:"id"`
}

type decodeRequest struct {
	IDs               []int `json:"ids"`
	SkipSpecialTokens bool  `json:"skip_special_tokens"`
}

type decodeResponse struct {
	Tokens []string `json:"tokens"`
}

type generateRequest struct {
	core.GenerateParams

	InputIDs []int `json:"input_ids"`
}

type generateResponse struct {
	OutputIDs []int `json:"output_ids"`
}

type encodeRequest struct {
	Samples       []float32 `msgpack:"samples"`
	SampleRate    int       `msgpack:"sample_rate"`
	InferenceOnly bool      `msgpack:"inference_only"`
}

type encodeResponse struct {
	Codes []int `msgpack:"codes"`
}

type decodeCodesRequest struct {
	Codes []int `msgpack:"codes"`
}

type decodeCodesResponse struct {
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
}

type tokenizer struct {
	client *Client
}

func (t *tokenizer) ApplyChatTemplate(
	ctx context.Context,
	messages []core.ChatMessage,
	continueFinalMessage bool,
) ([]int, error) {
	var resp inputIDsResponse

	err := t.client.postJSON(ctx, apiChatTemplate, chatTemplateRequest{
		Messages:             messages,
		ContinueFinalMessage: continueFinalMessage,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("apply chat template: %w", err)
	}

	return resp.InputIDs, nil
}

func (t *tokenizer) TokenID(ctx context.Context, token string) (int, error) {
	var resp tokenIDResponse

	err := t.client.postJSON(ctx, apiTokenID, tokenIDRequest{Token: token}, &resp)
	if err != nil {
		return 0, fmt.Errorf("token id for %q: %w", token, err)
	}

	if resp.ID == nil {
		return 0, fmt.Errorf("token %q is not in the vocabulary", token)
	}

	return *resp.ID, nil
}

func (t *tokenizer) DecodeTokens(ctx context.Context, ids []int) ([]string, error) {
	var resp decodeResponse

	err := t.client.postJSON(ctx, apiDecode, decodeRequest{IDs: ids, SkipSpecialTokens: true}, &resp)
	if err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}

	if len(resp.Tokens) != len(ids) {
		return nil, fmt.Errorf("decode tokens: got %d strings for %d ids", len(resp.Tokens), len(ids))
	}

	return resp.Tokens, nil
}

type languageModel struct {
	client *Client
}

func (m *languageModel) Generate(ctx context.Context, inputIDs []int, params core.GenerateParams) ([]int, error) {
	var resp generateResponse

	err := m.client.postJSON(ctx, apiGenerate, generateRequest{GenerateParams: params, InputIDs: inputIDs}, &resp)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	return resp.OutputIDs, nil
}

type codec struct {
	client *Client
}

func (c *codec) EncodeCode(ctx context.Context, waveform core.Waveform) (core.SpeechCodes, error) {
	var resp encodeResponse

	err := c.client.postMsgpack(ctx, apiCodecEncode, encodeRequest{
		Samples:       waveform.Samples,
		SampleRate:    waveform.SampleRate,
		InferenceOnly: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("codec encode: %w", err)
	}

	return resp.Codes, nil
}

func (c *codec) DecodeCode(ctx context.Context, codes core.SpeechCodes) (core.Waveform, error) {
	var resp decodeCodesResponse

	err := c.client.postMsgpack(ctx, apiCodecDecode, decodeCodesRequest{Codes: codes}, &resp)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("codec decode: %w", err)
	}

	return core.Waveform{Samples: resp.Samples, SampleRate: resp.SampleRate}, nil
}
