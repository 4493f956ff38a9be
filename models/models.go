package models

const (
	GameBattleship  = "battleship"
	GameTicTacToe   = "tictactoe"
	GameMinesweeper = "minesweeper"
	GameMastermind  = "mastermind"
)

// Solo reports whether game is played by a single participant.
func Solo(game string) bool {
	return game == GameMinesweeper || game == GameMastermind
}

const (
	StatusInProgress        = "in_progress"
	StatusWon               = "won"
	StatusLost              = "lost"
	StatusTie               = "tie"
	StatusForfeited         = "forfeited"
	StatusOpponentForfeited = "opponent_forfeited"
)

// View is the private display state of one participant.
type View struct {
	SessionID   string        `json:"session_id"`
	Game        string        `json:"game"`
	Participant string        `json:"participant"`
	Opponent    string        `json:"opponent"`
	YourTurn    bool          `json:"your_turn"`
	Status      string        `json:"status"`
	ShipsLeft   int           `json:"ships_left,omitempty"`
	Log         []string      `json:"log"`
	Board       [][]string    `json:"board"`
	AttackBoard [][]string    `json:"attack_board,omitempty"`
	LastAttack  *AttackResult `json:"last_attack,omitempty"`
}

type AttackResult struct {
	Coord string `json:"coord"`
	Hit   bool   `json:"hit"`
	Sunk  string `json:"sunk,omitempty"`
}

type Step string

const (
	StepColumn  Step = "column"
	StepRow     Step = "row"
	StepConfirm Step = "confirm"
	StepCell    Step = "cell"
	StepColor   Step = "color"
)

type Choice struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Prompt asks a participant for the next input. Only one prompt is live per participant; a new
// prompt replaces the one with the previous ID.
type Prompt struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Step      Step     `json:"step"`
	Text      string   `json:"text"`
	Choices   []Choice `json:"choices"`
}

const (
	NoticeInfo      = "info"
	NoticeResult    = "result"
	NoticeRejection = "rejection"
	NoticeGameOver  = "game_over"
)

type Notice struct {
	SessionID string `json:"session_id,omitempty"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

// GameEnded is emitted exactly once per session.
type GameEnded struct {
	SessionID   string   `json:"session_id"`
	Game        string   `json:"game"`
	Players     []string `json:"players"`
	Winner      string   `json:"winner,omitempty"`
	ForfeitedBy string   `json:"forfeited_by,omitempty"`
	Tie         bool     `json:"tie,omitempty"`
	Reason      string   `json:"reason"`
}

const (
	ReasonWin          = "win"
	ReasonTie          = "tie"
	ReasonTimeout      = "timeout"
	ReasonResigned     = "resigned"
	ReasonUnavailable  = "presentation_unavailable"
	ReasonShuttingDown = "shutdown"
	// ReasonMine ends a minesweeper game on a revealed bomb.
	ReasonMine = "mine"
	// ReasonExhausted ends a mastermind game that ran out of attempts.
	ReasonExhausted = "exhausted"
)

const (
	ActionOpen    = "open"
	ActionJoin    = "join"
	ActionColumn  = "column"
	ActionRow     = "row"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionResign  = "resign"
	ActionPlace   = "place"
	ActionReveal  = "reveal"
	ActionFlag    = "flag"
	ActionPick    = "pick"
	ActionUndo    = "undo"
	ActionSubmit  = "submit"
)

// Action is a message from a participant to the server.
type Action struct {
	Type  string `json:"type"`
	Value int    `json:"value,omitempty"`
	Row   int    `json:"row,omitempty"`
	Col   int    `json:"col,omitempty"`
	Game  string `json:"game,omitempty"`
	Lobby string `json:"lobby,omitempty"`
}

const (
	EnvelopeView    = "view"
	EnvelopePrompt  = "prompt"
	EnvelopeDismiss = "dismiss"
	EnvelopeNotice  = "notice"
	EnvelopeEnded   = "ended"
	EnvelopeLobby   = "lobby"
	EnvelopeError   = "error"
)

// Envelope is a message from the server to a participant.
type Envelope struct {
	Type    string     `json:"type"`
	View    *View      `json:"view,omitempty"`
	Prompt  *Prompt    `json:"prompt,omitempty"`
	Dismiss string     `json:"dismiss,omitempty"`
	Notice  *Notice    `json:"notice,omitempty"`
	Ended   *GameEnded `json:"ended,omitempty"`
	Lobby   *Room      `json:"lobby,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type Room struct {
	ID   string `json:"id"`
	Game string `json:"game"`
	Host string `json:"host"`
}
