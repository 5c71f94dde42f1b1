package dueldto

// Event carries display names in Actor/Target and raw kinds in Item/Bullet.
type Event struct {
	Kind     string
	Actor    string
	Target   string
	Item     string
	Bullet   string
	Amount   int
	HP       int
	HPHidden bool
	Live     int
	Blank    int
	Round    int
	Items    []string
	Reason   string
	Prize    int64
}

type Outcome struct {
	Events        []Event
	TurnContinues bool
	RoundOver     bool
	MatchOver     bool
	Winner        string
	Prize         int64
}
