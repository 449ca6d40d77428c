package gpu

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Feature names a device capability that can be required by configuration.
type Feature string

const (
	FeatureSamplerAnisotropy     Feature = "samplerAnisotropy"
	FeatureSampleRateShading     Feature = "sampleRateShading"
	FeatureBufferDeviceAddress   Feature = "bufferDeviceAddress"
	FeatureAccelerationStructure Feature = "accelerationStructure"
	FeatureRayTracingPipeline    Feature = "rayTracingPipeline"
)

var KnownFeatures = []Feature{
	FeatureSamplerAnisotropy,
	FeatureSampleRateShading,
	FeatureBufferDeviceAddress,
	FeatureAccelerationStructure,
	FeatureRayTracingPipeline,
}

func IsKnownFeature(name string) bool {
	for _, f := range KnownFeatures {
		if string(f) == name {
			return true
		}
	}
	return false
}

type MemoryType struct {
	PropertyFlags core1_0.MemoryPropertyFlags
	HeapIndex     int
}

type QueueFamily struct {
	Index      int
	QueueCount int
	Graphics   bool
	Present    bool
}

type QueueFamilyIndices struct {
	Graphics int
	Present  int
}

// Unique lists each family once, graphics first.
func (q QueueFamilyIndices) Unique() []int {
	if q.Graphics == q.Present {
		return []int{q.Graphics}
	}
	return []int{q.Graphics, q.Present}
}

// PhysicalDeviceInfo is everything device selection and Device construction read from a
// physical device, gathered once by the driver.
type PhysicalDeviceInfo struct {
	Name       string
	Discrete   bool
	APIVersion string

	Features             map[Feature]bool
	Extensions           map[string]bool
	MaxSamplerAnisotropy float32

	ColorSampleCounts core1_0.SampleCountFlags
	DepthSampleCounts core1_0.SampleCountFlags

	MemoryTypes   []MemoryType
	QueueFamilies []QueueFamily

	SurfaceFormatCount int
	PresentModeCount   int
}

type DeviceRequirements struct {
	Extensions     []string
	Features       []Feature
	PreferDiscrete bool
}

// SelectQueueFamilies finds a graphics family and a present family, preferring one family
// that does both.
func SelectQueueFamilies(families []QueueFamily) (QueueFamilyIndices, error) {
	graphics, present := -1, -1
	for _, family := range families {
		if family.QueueCount == 0 {
			continue
		}
		if family.Graphics && family.Present {
			return QueueFamilyIndices{Graphics: family.Index, Present: family.Index}, nil
		}
		if family.Graphics && graphics < 0 {
			graphics = family.Index
		}
		if family.Present && present < 0 {
			present = family.Index
		}
	}

	if graphics < 0 || present < 0 {
		return QueueFamilyIndices{}, errors.Wrapf(ErrNoQueueFamily, "graphics=%d present=%d", graphics, present)
	}
	return QueueFamilyIndices{Graphics: graphics, Present: present}, nil
}

// ScorePhysicalDevice rates a device against the requirements. Negative means unusable.
func ScorePhysicalDevice(info PhysicalDeviceInfo, reqs DeviceRequirements) int {
	if reqs.PreferDiscrete && !info.Discrete {
		return -1
	}
	for _, feature := range reqs.Features {
		if !info.Features[feature] {
			return -1
		}
	}
	for _, ext := range reqs.Extensions {
		if !info.Extensions[ext] {
			return -1
		}
	}
	if _, err := SelectQueueFamilies(info.QueueFamilies); err != nil {
		return -1
	}
	if info.SurfaceFormatCount == 0 || info.PresentModeCount == 0 {
		return -1
	}

	score := 1
	if info.Discrete {
		score += 1000
	}
	if info.Features[FeatureSamplerAnisotropy] {
		score += 10
	}
	score += sampleCountValue(MaxUsableSampleCount(info.ColorSampleCounts, info.DepthSampleCounts))
	return score
}

// PickPhysicalDevice returns the index of the best scoring candidate.
func PickPhysicalDevice(candidates []PhysicalDeviceInfo, reqs DeviceRequirements) (int, error) {
	if len(candidates) == 0 {
		return -1, errors.Wrap(ErrNoSuitableDevice, "no GPUs with Vulkan support")
	}

	order := make([]int, len(candidates))
	scores := make([]int, len(candidates))
	for i, info := range candidates {
		order[i] = i
		scores[i] = ScorePhysicalDevice(info, reqs)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	best := order[0]
	if scores[best] <= 0 {
		return -1, ErrNoSuitableDevice
	}
	return best, nil
}

var sampleCounts = []core1_0.SampleCountFlags{
	core1_0.Samples64,
	core1_0.Samples32,
	core1_0.Samples16,
	core1_0.Samples8,
	core1_0.Samples4,
	core1_0.Samples2,
}

// MaxUsableSampleCount is the highest sample count supported by both color and depth attachments.
func MaxUsableSampleCount(colorCounts, depthCounts core1_0.SampleCountFlags) core1_0.SampleCountFlags {
	counts := colorCounts & depthCounts
	for _, count := range sampleCounts {
		if counts&count != 0 {
			return count
		}
	}
	return core1_0.Samples1
}

func sampleCountValue(count core1_0.SampleCountFlags) int {
	switch count {
	case core1_0.Samples64:
		return 64
	case core1_0.Samples32:
		return 32
	case core1_0.Samples16:
		return 16
	case core1_0.Samples8:
		return 8
	case core1_0.Samples4:
		return 4
	case core1_0.Samples2:
		return 2
	}
	return 1
}
