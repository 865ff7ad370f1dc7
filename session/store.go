package session

// Pair is the credential pair held for the signed-in subject.
//
// The access token is opaque: its expiry is only ever discovered when the
// backend rejects a request carrying it.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// SubjectID identifies the signed-in subject and is sent alongside the
	// refresh token in the refresh exchange.
	SubjectID string `json:"subject_id,omitempty"`
}

// HasRefreshToken reports whether the pair can be refreshed.
func (p Pair) HasRefreshToken() bool {
	return p.RefreshToken != ""
}

// sameSession reports whether p still holds the session expect was read
// from.
func (p Pair) sameSession(expect Pair) bool {
	return p.HasRefreshToken() &&
		p.RefreshToken == expect.RefreshToken &&
		p.SubjectID == expect.SubjectID
}

// refreshed returns p with the tokens of a refresh applied. An empty
// refreshToken keeps the current one.
func (p Pair) refreshed(accessToken, refreshToken string) Pair {
	p.AccessToken = accessToken
	if refreshToken != "" {
		p.RefreshToken = refreshToken
	}
	return p
}

// Store holds the current credential pair. Every mutation replaces the
// stored value in one step; callers never read-modify-write a Pair across a
// blocking call.
type Store interface {
	// Get returns a copy of the current pair. An empty pair is returned
	// when nobody is signed in.
	Get() (Pair, error)

	// Set replaces the whole pair, as done by login.
	Set(pair Pair) error

	// SetAccessToken replaces only the access token, as done by refresh.
	SetAccessToken(token string) error

	// SetRefreshToken replaces only the refresh token, for backends that
	// rotate it on refresh.
	SetRefreshToken(token string) error

	// ReplaceTokens stores the result of a refresh of expect. The swap only
	// happens while the store still holds that session, identified by its
	// refresh token and subject; it reports false when the session was
	// cleared or replaced in the meantime. An empty refreshToken keeps the
	// current one.
	ReplaceTokens(expect Pair, accessToken, refreshToken string) (bool, error)

	// Clear forgets the pair.
	Clear() error

	// IsAuthenticated reports whether an access token is present.
	IsAuthenticated() bool
}
