package domain

const (
	EventNamePlayerJoined       = "player.joined"
	EventNameRoomStarted        = "room.started"
	EventNameRoundAdvanced      = "round.advanced"
	EventNameAnswerRecorded     = "answer.recorded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventPlayerJoined struct {
	Player Player
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventRoomStarted struct {
	Room Room
}

func (EventRoomStarted) Name() string { return EventNameRoomStarted }

// EventRoundAdvanced is published once per applied transition, including active(last) -> finished.
type EventRoundAdvanced struct {
	Room Room
}

func (EventRoundAdvanced) Name() string { return EventNameRoundAdvanced }

// EventAnswerRecorded is published for every inserted answer, automatic ones included.
type EventAnswerRecorded struct {
	Answer AnswerRecord
}

func (EventAnswerRecorded) Name() string { return EventNameAnswerRecorded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
