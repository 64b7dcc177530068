package action

const (
	StartSessionType = "start_session"
	StartGameType    = "start_game"
	GameResultType   = "game_result"
	RetentionType    = "retention_action"
	ConversionType   = "conversion_action"
)

// the parameter key holding the caller's kind for the kinded actions
var kindKeys = map[string]string{
	RetentionType:  "retention_type",
	ConversionType: "conversion_type",
}

// Request is a named action waiting to be submitted
type Request struct {
	Type       string
	Parameters interface{}
}

type SystemInfo struct {
	DeviceModel     string
	DeviceType      string
	OperatingSystem string
}

func Named(actionType string, parameters interface{}) Request {
	return Request{
		Type:       actionType,
		Parameters: parameters,
	}
}

// StartSession reports the game version and the device the session runs on
func StartSession(version string, info SystemInfo) Request {
	systemInfo := NewParameters().
		Set("device_model", info.DeviceModel).
		Set("device_type", info.DeviceType).
		Set("operating_system", info.OperatingSystem)

	return Named(StartSessionType, NewParameters().
		Set("version", version).
		Set("system_info", systemInfo))
}

func StartGame(parameters interface{}) Request {
	return Named(StartGameType, parameters)
}

func GameResult(parameters interface{}) Request {
	return Named(GameResultType, parameters)
}

// Retention is sent each time a bonus or booster is given to the player (e.g. invite_friend, daily_reward)
func Retention(kind string) Request {
	return kinded(RetentionType, kind)
}

// Conversion is sent each time a player converts and gains rewards (e.g. purchase)
func Conversion(kind string) Request {
	return kinded(ConversionType, kind)
}

func kinded(actionType string, kind string) Request {
	return Named(actionType, NewParameters().Set(kindKeys[actionType], kind))
}
