package main

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkbase/assets"
	"github.com/vkngwrapper/vkbase/frameloop"
	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/model"
	"github.com/vkngwrapper/vkbase/texture"
	"github.com/vkngwrapper/vkbase/vkng"
)

type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const uniformBufferSize = 3 * 16 * 4

type vikingRoom struct {
	backend      *vkng.Backend
	device       *gpu.Device
	deviceDriver core1_0.CoreDeviceDriver

	texture *texture.Texture
	model   *model.Model
	shaders *assets.ShaderSet
	stages  []assets.ShaderStage

	descriptorSetLayout core1_0.DescriptorSetLayout
	pipelineLayout      core1_0.PipelineLayout
	renderPass          core1_0.RenderPass
	graphicsPipeline    core1_0.Pipeline

	descriptorPool core1_0.DescriptorPool
	descriptorSets []core1_0.DescriptorSet
	uniformBuffers []*gpu.Buffer

	framebuffers []core1_0.Framebuffer
	extent       core1_0.Extent2D
}

func newVikingRoom(backend *vkng.Backend) (*vikingRoom, error) {
	room := &vikingRoom{
		backend:      backend,
		device:       backend.Device,
		deviceDriver: backend.DeviceDriver(),
		shaders:      assets.NewShaderSet(backend.Device),
	}

	err := room.load()
	if err != nil {
		room.destroy()
		return nil, err
	}
	return room, nil
}

func (r *vikingRoom) load() error {
	var err error
	r.texture, err = texture.Load2D(r.device, assets.Path("viking_room.png"), texture.Options{})
	if err != nil {
		return err
	}

	r.model, err = model.Load(r.device, assets.Path("viking_room.obj"))
	if err != nil {
		return err
	}

	vert, err := r.shaders.Load(assets.ShaderPath("vert.spv"), core1_0.StageVertex)
	if err != nil {
		return err
	}
	frag, err := r.shaders.Load(assets.ShaderPath("frag.spv"), core1_0.StageFragment)
	if err != nil {
		return err
	}
	r.stages = []assets.ShaderStage{vert, frag}

	return r.createDescriptorSetLayout()
}

func (r *vikingRoom) createDescriptorSetLayout() error {
	var err error
	r.descriptorSetLayout, _, err = r.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCreateDescriptorSetLayout")
	}

	r.pipelineLayout, _, err = r.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			r.descriptorSetLayout,
		},
	})
	return errors.Wrap(err, "vkCreatePipelineLayout")
}

// CreateFramebuffers builds the render pass on first use, then the pipeline, uniform buffers,
// descriptor sets and framebuffers for the current swapchain.
func (r *vikingRoom) CreateFramebuffers(targets frameloop.Targets) error {
	r.extent = targets.Extent

	if !r.renderPass.Initialized() {
		err := r.createRenderPass(targets)
		if err != nil {
			return err
		}
	}

	err := r.createGraphicsPipeline(targets.Samples, targets.PipelineCache)
	if err != nil {
		return err
	}

	if len(r.descriptorSets) != len(targets.SwapchainViews) {
		r.destroyDescriptors()
		err = r.createUniformBuffers(len(targets.SwapchainViews))
		if err != nil {
			return err
		}
		err = r.createDescriptorSets(len(targets.SwapchainViews))
		if err != nil {
			return err
		}
	}

	for _, view := range targets.SwapchainViews {
		framebuffer, _, err := r.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: r.renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				r.backend.ImageView(targets.Color.View),
				r.backend.ImageView(targets.Depth.View),
				r.backend.ImageView(view),
			},
			Width:  targets.Extent.Width,
			Height: targets.Extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "vkCreateFramebuffer")
		}

		r.framebuffers = append(r.framebuffers, framebuffer)
	}

	return nil
}

func (r *vikingRoom) createRenderPass(targets frameloop.Targets) error {
	renderPass, _, err := r.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         targets.ColorFormat,
				Samples:        targets.Samples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:         targets.DepthFormat,
				Samples:        targets.Samples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
			{
				Format:         targets.ColorFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpDontCare,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				ResolveAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 2,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCreateRenderPass")
	}

	r.renderPass = renderPass
	return nil
}

func (r *vikingRoom) createGraphicsPipeline(samples core1_0.SampleCountFlags, cacheID gpu.PipelineCacheID) error {
	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, stage := range r.stages {
		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: r.backend.ShaderModule(stage.Module),
			Name:   stage.Entry,
		})
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(r.extent.Width),
				Height:   float32(r.extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: r.extent,
			},
		},
	}

	cache := r.backend.PipelineCache(cacheID)
	pipelines, _, err := r.deviceDriver.CreateGraphicsPipelines(&cache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: stages,
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   model.BindingDescriptions(),
				VertexAttributeDescriptions: model.AttributeDescriptions(),
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology: core1_0.PrimitiveTopologyTriangleList,
			},
			ViewportState: viewport,
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: samples,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  true,
				DepthWriteEnable: true,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			Layout:            r.pipelineLayout,
			RenderPass:        r.renderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "vkCreateGraphicsPipelines")
	}
	r.graphicsPipeline = pipelines[0]
	return nil
}

func (r *vikingRoom) createUniformBuffers(count int) error {
	for i := 0; i < count; i++ {
		buffer, err := r.device.CreateBuffer(core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, uniformBufferSize, nil)
		if err != nil {
			return err
		}
		r.uniformBuffers = append(r.uniformBuffers, buffer)

		if _, err := buffer.Map(gpu.WholeSize, 0); err != nil {
			return err
		}
		buffer.SetDescriptor(gpu.WholeSize, 0)
	}
	return nil
}

func (r *vikingRoom) createDescriptorSets(count int) error {
	var err error
	r.descriptorPool, _, err = r.deviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: count,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: count,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCreateDescriptorPool")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range allocLayouts {
		allocLayouts[i] = r.descriptorSetLayout
	}

	r.descriptorSets, _, err = r.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: r.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "vkAllocateDescriptorSets")
	}

	textureDescriptor := r.texture.Descriptor()
	for i, set := range r.descriptorSets {
		uniform := r.uniformBuffers[i].Descriptor
		err = r.deviceDriver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          set,
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: r.backend.Buffer(uniform.Buffer),
						Offset: uniform.Offset,
						Range:  uniform.Range,
					},
				},
			},
			{
				DstSet:          set,
				DstBinding:      1,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

				ImageInfo: []core1_0.DescriptorImageInfo{
					{
						ImageView:   r.backend.ImageView(textureDescriptor.ImageView),
						Sampler:     r.backend.Sampler(textureDescriptor.Sampler),
						ImageLayout: textureDescriptor.ImageLayout,
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrap(err, "vkUpdateDescriptorSets")
		}
	}
	return nil
}

func (r *vikingRoom) RecordCommandBuffer(cb gpu.CommandBufferID, imageIndex int) error {
	buffer := r.backend.CommandBuffer(cb)

	err := r.deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.renderPass,
			Framebuffer: r.framebuffers[imageIndex],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: r.extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return err
	}

	r.deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.graphicsPipeline)
	r.deviceDriver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.backend.Buffer(r.model.VertexBuffer.Handle)}, []int{0})
	r.deviceDriver.CmdBindIndexBuffer(buffer, r.backend.Buffer(r.model.IndexBuffer.Handle), 0, model.IndexType)
	r.deviceDriver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.pipelineLayout, 0, []core1_0.DescriptorSet{
		r.descriptorSets[imageIndex],
	}, nil)
	r.deviceDriver.CmdDrawIndexed(buffer, r.model.IndexCount, 1, 0, 0, 0)
	r.deviceDriver.CmdEndRenderPass(buffer)
	return nil
}

// UpdateUniforms spins the room a quarter turn per second.
func (r *vikingRoom) UpdateUniforms(imageIndex int, stats frameloop.Stats) error {
	timePeriod := math.Mod(stats.Elapsed, 4.0)

	aspectRatio := float32(r.extent.Width) / float32(r.extent.Height)
	proj := mgl32.Perspective(math.Pi/4.0, aspectRatio, 0.1, 10.0)
	// Vulkan clip space has Y pointing down.
	proj[5] *= -1

	ubo := UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(float32(timePeriod * math.Pi / 2.0)),
		View: mgl32.LookAtV(
			mgl32.Vec3{2, 2, 2},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: proj,
	}

	return r.uniformBuffers[imageIndex].WriteValue(0, &ubo)
}

func (r *vikingRoom) DestroyFramebuffers() {
	for _, framebuffer := range r.framebuffers {
		r.deviceDriver.DestroyFramebuffer(framebuffer, nil)
	}
	r.framebuffers = nil

	if r.graphicsPipeline.Initialized() {
		r.deviceDriver.DestroyPipeline(r.graphicsPipeline, nil)
		r.graphicsPipeline = core1_0.Pipeline{}
	}
}

func (r *vikingRoom) destroyDescriptors() {
	if r.descriptorPool.Initialized() {
		r.deviceDriver.DestroyDescriptorPool(r.descriptorPool, nil)
		r.descriptorPool = core1_0.DescriptorPool{}
	}
	r.descriptorSets = nil

	for _, buffer := range r.uniformBuffers {
		buffer.Destroy()
	}
	r.uniformBuffers = nil
}

func (r *vikingRoom) destroy() {
	_ = r.device.WaitIdle()

	r.DestroyFramebuffers()
	r.destroyDescriptors()

	if r.renderPass.Initialized() {
		r.deviceDriver.DestroyRenderPass(r.renderPass, nil)
		r.renderPass = core1_0.RenderPass{}
	}

	if r.pipelineLayout.Initialized() {
		r.deviceDriver.DestroyPipelineLayout(r.pipelineLayout, nil)
		r.pipelineLayout = core1_0.PipelineLayout{}
	}

	if r.descriptorSetLayout.Initialized() {
		r.deviceDriver.DestroyDescriptorSetLayout(r.descriptorSetLayout, nil)
		r.descriptorSetLayout = core1_0.DescriptorSetLayout{}
	}

	r.shaders.Destroy()
	if r.model != nil {
		r.model.Destroy()
	}
	r.texture.Destroy()
}
