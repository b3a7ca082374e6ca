// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

// Argument names shared by layouts, code generation and tests.
const (
	ArgInternalBindings       = "internal_bindings"
	ArgBindless               = "bindless_samplers_and_images"
	ArgConstBuffers           = "const_and_shader_buffers"
	ArgSamplersAndImages      = "samplers_and_images"
	ArgOtherConstBuffers      = "other_const_and_shader_buffers"
	ArgOtherSamplersAndImages = "other_samplers_and_images"

	ArgVSStateBits   = "vs_state_bits"
	ArgBaseVertex    = "base_vertex"
	ArgDrawID        = "draw_id"
	ArgStartInstance = "start_instance"
	ArgVertexBuffers = "vertex_buffers"
	ArgVBDescriptor  = "vb_descriptor"

	ArgES2GSOffset         = "es2gs_offset"
	ArgStreamoutConfig     = "streamout_config"
	ArgStreamoutWriteIndex = "streamout_write_index"
	ArgStreamoutOffset     = "streamout_offset"

	ArgTCSOffchipLayout  = "tcs_offchip_layout"
	ArgTCSOutLDSOffsets  = "tcs_out_lds_offsets"
	ArgTCSOutLDSLayout   = "tcs_out_lds_layout"
	ArgTessOffchipOffset = "tess_offchip_offset"
	ArgTCSFactorOffset   = "tcs_factor_offset"
	ArgTCSPatchID        = "tcs_patch_id"
	ArgTCSRelIDs         = "tcs_rel_ids"

	ArgMergedWaveInfo    = "merged_wave_info"
	ArgScratchOffset     = "scratch_offset"
	ArgGSTGInfo          = "gs_tg_info"
	ArgGS2VSOffset       = "gs2vs_offset"
	ArgGSWaveID          = "gs_wave_id"
	ArgSmallPrimCullInfo = "small_prim_cull_info"

	ArgTESOffchipAddr = "tes_offchip_addr"
	ArgTESU           = "tes_u"
	ArgTESV           = "tes_v"
	ArgTESRelPatchID  = "tes_rel_patch_id"
	ArgTESPatchID     = "tes_patch_id"

	ArgGSVtxOffset    = "gs_vtx_offset"
	ArgGSPrimID       = "gs_prim_id"
	ArgGSInvocationID = "gs_invocation_id"

	ArgVertexID      = "vertex_id"
	ArgInstanceID    = "instance_id"
	ArgVSRelPatchID  = "vs_rel_patch_id"
	ArgVSPrimID      = "vs_prim_id"
	ArgVertexIndex   = "vertex_index"
	ArgForwardedAttr = "forwarded"

	ArgAlphaRef        = "alpha_ref"
	ArgPrimMask        = "prim_mask"
	ArgPerspSample     = "persp_sample"
	ArgPerspCenter     = "persp_center"
	ArgPerspCentroid   = "persp_centroid"
	ArgPerspPullModel  = "persp_pull_model"
	ArgLinearSample    = "linear_sample"
	ArgLinearCenter    = "linear_center"
	ArgLinearCentroid  = "linear_centroid"
	ArgLineStipple     = "line_stipple_tex"
	ArgFragPosX        = "frag_pos_x"
	ArgFragPosY        = "frag_pos_y"
	ArgFragPosZ        = "frag_pos_z"
	ArgFragPosW        = "frag_pos_w"
	ArgFrontFace       = "front_face"
	ArgAncillary       = "ancillary"
	ArgSampleCoverage  = "sample_coverage"
	ArgPosFixedPt      = "pos_fixed_pt"
	ArgColor           = "color"
	ArgFragDepth       = "frag_depth"
	ArgFragStencil     = "frag_stencil"
	ArgFragSamplemask  = "frag_samplemask"
	ArgSampleMaskIn    = "sample_mask_in"
	ArgTessFactor      = "tess_factor"
	ArgTFLDSOffset     = "tf_lds_offset"
	ArgInvocationID    = "invocation_id"
	ArgRelPatchID      = "rel_patch_id"
	ArgNumWorkGroups   = "num_work_groups"
	ArgBlockSize       = "block_size"
	ArgWorkgroupID     = "workgroup_id"
	ArgTGSize          = "tg_size"
	ArgLocalInvocation = "local_invocation_ids"
)

// Fixed positions of the register contract.
const (
	// MergedSystemSGPRs is the shared system block at the start of a
	// merged LS+HS or ES+GS wave.
	MergedSystemSGPRs = 8

	// SGPRVBDescriptorFirst is the user SGPR where preloaded vertex buffer
	// descriptors start. Descriptors are 4 SGPRs and 4-aligned.
	SGPRVBDescriptorFirst = 12

	// GFX6TCSNumUserSGPR is the user SGPR count of a standalone HS.
	GFX6TCSNumUserSGPR = 8
	// GFX9TCSNumUserSGPR is the user SGPR count of a merged LS+HS.
	GFX9TCSNumUserSGPR = 11
	// GFX9SGPRTCSOutLayout is the user SGPR holding the HS output layout.
	GFX9SGPRTCSOutLayout = 10

	// NumVSStateResourceSGPRs is the ES to GS scalar hand-off.
	NumVSStateResourceSGPRs = 5
	// GFX9VSGSNumUserSGPR and GFX9TESGSNumUserSGPR are the user SGPR
	// counts of a merged VS+GS and TES+GS.
	GFX9VSGSNumUserSGPR  = 8
	GFX9TESGSNumUserSGPR = 7

	// SGPRAlphaRef is the fragment SGPR holding the alpha test reference.
	SGPRAlphaRef = 4

	// PSEpilogSamplemaskMinLoc is the lowest VGPR the fragment epilog
	// reads the input sample mask from.
	PSEpilogSamplemaskMinLoc = 14

	// TCSEpilogVGPRs is the HS to epilog vector hand-off.
	TCSEpilogVGPRs = 11
)
