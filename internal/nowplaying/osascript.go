package nowplaying

import "time"

const appleScript = `getCurrentlyPlayingTrack()
on getCurrentlyPlayingTrack()
tell application "Spotify"
if player state is not playing then return "PAUSED"
set currentArtist to artist of current track as string
set currentTrack to name of current track as string
return {currentArtist, currentTrack}
end tell
end getCurrentlyPlayingTrack`

// NewOSAScript queries Spotify through AppleScript. osascript prints the
// returned list as "<artist>, <title>".
func NewOSAScript(timeout time.Duration) *Command {
	return NewCommand([]string{"osascript", "-e", appleScript}, timeout)
}
