package engine

func platformLocker() SessionLocker {
	return CommandLocker{Name: "pmset", Args: []string{"displaysleepnow"}}
}
