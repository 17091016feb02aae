package livekit

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/observer/tandem/internal/domain"
)

const (
	roomTokenTTL     = 24 * time.Hour
	redirectTokenTTL = 3 * time.Hour
)

// TokenSet carries the pair of media grants handed to one side of a call.
// Participant names the user on the other side.
type TokenSet struct {
	AudioToken  string `json:"audioToken"`
	VideoToken  string `json:"videoToken"`
	Participant string `json:"participant"`
}

// Issuer mints LiveKit access tokens for call and watercooler rooms
type Issuer struct {
	apiKey    string
	apiSecret string
	serverURL string
}

// NewIssuer creates a new token issuer
func NewIssuer(apiKey, apiSecret, serverURL string) (*Issuer, error) {
	if apiKey == "" || apiSecret == "" || serverURL == "" {
		return nil, fmt.Errorf("livekit configuration incomplete")
	}

	return &Issuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		serverURL: serverURL,
	}, nil
}

// ServerURL returns the LiveKit server URL clients should connect to
func (i *Issuer) ServerURL() string {
	return i.serverURL
}

// MintRoomTokens creates the audio and video grants a participant needs to
// join a room. Each media kind gets its own identity so clients can publish
// audio and video over separate connections.
func (i *Issuer) MintRoomTokens(room string, participant *domain.User) (TokenSet, error) {
	videoID := fmt.Sprintf("room:%s:%s:video", room, participant.ID)
	audioID := fmt.Sprintf("room:%s:%s:audio", room, participant.ID)

	video := auth.
		NewAccessToken(i.apiKey, i.apiSecret).
		SetIdentity(videoID).
		SetValidFor(roomTokenTTL).
		SetName(participant.DisplayName() + " video").
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin: true,
			Room:     room,
		})

	audio := auth.
		NewAccessToken(i.apiKey, i.apiSecret).
		SetIdentity(audioID).
		SetValidFor(roomTokenTTL).
		SetName(participant.DisplayName() + " audio").
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin: true,
			Room:     room,
		})

	videoToken, err := video.ToJWT()
	if err != nil {
		return TokenSet{}, fmt.Errorf("creating video token: %w", err)
	}

	audioToken, err := audio.ToJWT()
	if err != nil {
		return TokenSet{}, fmt.Errorf("creating audio token: %w", err)
	}

	return TokenSet{
		VideoToken: videoToken,
		AudioToken: audioToken,
	}, nil
}

// MintRedirectToken creates the audio-only grant used by the meet redirect.
// The participant is not a registered user, so no display name is set.
func (i *Issuer) MintRedirectToken(room, participantID string) (string, error) {
	audioID := fmt.Sprintf("room:%s:%s:audio", room, participantID)

	audio := auth.
		NewAccessToken(i.apiKey, i.apiSecret).
		SetIdentity(audioID).
		SetValidFor(redirectTokenTTL).
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin: true,
			Room:     room,
		})

	token, err := audio.ToJWT()
	if err != nil {
		return "", fmt.Errorf("creating audio token: %w", err)
	}

	return token, nil
}
