package pcm

import "fmt"

// SaveStereoPair writes left/right as a 2-channel WAV file at path.
func SaveStereoPair(path string, left, right []int32, sampleRate uint32, format SampleFormat) error {
	buf, err := MergeStereoPairs(left, right, sampleRate, format)
	if err != nil {
		return err
	}
	return buf.ToWav(path)
}

// LoadStereoPair reads a WAV file at path and returns its left/right
// channels. It is an error for the file to have a channel count other than
// 2.
func LoadStereoPair(path string) (left, right []int32, sampleRate uint32, format SampleFormat, err error) {
	buf, err := FromWav(path)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	if buf.NumChannels() != 2 {
		return nil, nil, 0, 0, fmt.Errorf("pcm: expected 2 channels, got %d", buf.NumChannels())
	}
	return buf.Channels[0], buf.Channels[1], buf.SampleRate, buf.Format, nil
}
